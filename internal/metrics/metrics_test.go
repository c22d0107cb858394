package metrics

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"

	"cms-go/internal/versioned"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()

	m.RateLimitDecision(true)
	m.RateLimitDecision(true)
	m.RateLimitDecision(false)
	if got := promtest.ToFloat64(m.rateLimit.WithLabelValues("allowed")); got != 2 {
		t.Errorf("allowed = %v, want 2", got)
	}
	if got := promtest.ToFloat64(m.rateLimit.WithLabelValues("rejected")); got != 1 {
		t.Errorf("rejected = %v, want 1", got)
	}

	m.StoreError("remote", "get")
	if got := promtest.ToFloat64(m.storeErrors.WithLabelValues("remote", "get")); got != 1 {
		t.Errorf("store errors = %v, want 1", got)
	}
}

func TestMetrics_VersionedUpdate(t *testing.T) {
	m := New()

	tests := []struct {
		err    error
		result string
	}{
		{nil, "ok"},
		{fmt.Errorf("could not update: %w", versioned.ErrConflict), "conflict"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		m.VersionedUpdate("messages", 1, tt.err)
		if got := promtest.ToFloat64(m.updates.WithLabelValues("messages", tt.result)); got != 1 {
			t.Errorf("updates{result=%q} = %v, want 1", tt.result, got)
		}
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.HTTPRequest(http.MethodGet, "/health", http.StatusOK, 5*time.Millisecond)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), `cms_http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("exposition missing request counter:\n%s", body)
	}
}

func TestMetrics_Registry(t *testing.T) {
	m := New()
	m.RateLimitDecision(true)
	m.RateLimitDecision(false)
	m.StoreError("redis", "swap")

	n, err := promtest.GatherAndCount(m.Registry(), "cms_ratelimit_decisions_total", "cms_store_errors_total")
	if err != nil {
		t.Fatalf("GatherAndCount() error = %v", err)
	}
	if n != 3 {
		t.Errorf("series = %d, want 3", n)
	}

	families, err := m.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	var sawRuntime bool
	for _, f := range families {
		if f.GetName() == "go_goroutines" {
			sawRuntime = true
		}
	}
	if !sawRuntime {
		t.Error("registry missing go runtime collector")
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.RateLimitDecision(true)
	m.StoreError("memory", "set")
	m.VersionedUpdate("k", 1, nil)
	m.HTTPRequest("GET", "/", 200, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("nil Handler status = %d, want 404", rec.Code)
	}
}
