package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"cms-go/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMiddleware(t *testing.T) {
	l := New(2, time.Minute, testutil.FixedClock(), WithRand(neverSweep))

	var decisions []bool
	r := gin.New()
	r.POST("/x", Middleware(l, nil, func(d Decision) { decisions = append(decisions, d.Allowed) }), func(c *gin.Context) {
		c.String(http.StatusOK, ClientID(c, nil))
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.RemoteAddr = "192.0.2.1:4000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 2; i++ {
		w := do()
		if w.Code != http.StatusOK {
			t.Fatalf("request %d status = %d, want 200", i+1, w.Code)
		}
		if w.Body.String() != "192.0.2.1" {
			t.Errorf("client id = %q, want %q", w.Body.String(), "192.0.2.1")
		}
		if w.Header().Get(HeaderRetryAfter) != "" {
			t.Errorf("allowed response carries Retry-After")
		}
	}

	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get(HeaderRetryAfter) != "60" {
		t.Errorf("Retry-After = %q, want %q", w.Header().Get(HeaderRetryAfter), "60")
	}
	if w.Header().Get(HeaderRemaining) != "0" {
		t.Errorf("X-RateLimit-Remaining = %q, want 0", w.Header().Get(HeaderRemaining))
	}
	if len(decisions) != 3 || decisions[2] {
		t.Errorf("observed decisions = %v, want [true true false]", decisions)
	}
}
