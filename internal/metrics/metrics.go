// Package metrics exposes Prometheus counters for the limiter, the store
// and the versioned engine. A nil *Metrics records nothing.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cms-go/internal/versioned"
)

const namespace = "cms"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	rateLimit      *prometheus.CounterVec
	storeErrors    *prometheus.CounterVec
	updates        *prometheus.CounterVec
	updateAttempts prometheus.Histogram
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// New creates Metrics on a fresh registry, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Labels: outcome (allowed, rejected)
		rateLimit: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate limiter decisions by outcome",
		}, []string{"outcome"}),

		// Labels: backend, op (get, set, delete, swap)
		storeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "errors_total",
			Help:      "Backend errors, including those hidden by a fail-open policy",
		}, []string{"backend", "op"}),

		// Labels: key, result (ok, conflict, canceled, error)
		updates: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "versioned",
			Name:      "updates_total",
			Help:      "Versioned updates by key and result",
		}, []string{"key", "result"}),

		updateAttempts: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "versioned",
			Name:      "update_attempts",
			Help:      "Attempts needed per versioned update",
			Buckets:   []float64{1, 2, 3, 5, 8},
		}),

		// Labels: method, route, status
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),

		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// Registry returns the registry backing m.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RateLimitDecision counts one limiter decision.
func (m *Metrics) RateLimitDecision(allowed bool) {
	if m == nil {
		return
	}
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.rateLimit.WithLabelValues(outcome).Inc()
}

// StoreError counts one backend error. Its signature matches
// kv.WithErrorHook.
func (m *Metrics) StoreError(backend, op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(backend, op).Inc()
}

// VersionedUpdate records the outcome of one update. Its signature
// matches versioned.WithObserver.
func (m *Metrics) VersionedUpdate(key string, attempts int, err error) {
	if m == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, versioned.ErrConflict):
		result = "conflict"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		result = "canceled"
	default:
		result = "error"
	}
	m.updates.WithLabelValues(key, result).Inc()
	m.updateAttempts.Observe(float64(attempts))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
