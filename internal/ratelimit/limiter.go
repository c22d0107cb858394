// Package ratelimit implements a process-local fixed-window rate limiter
// keyed by client identifier.
//
// Each client gets a window of at most Limit requests that resets a fixed
// duration after it opened. Windows are not aligned or sliding, so a client
// can issue up to twice the limit within one window length that straddles
// a reset. Expired windows are swept on a random fraction of calls.
package ratelimit

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"cms-go/internal/cms"
)

// DefaultSweepFraction is the share of Check calls that sweep expired windows.
const DefaultSweepFraction = 0.01

type window struct {
	count     int
	resetTime time.Time
}

// Limiter is a fixed-window limiter. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit         int
	length        time.Duration
	clock         cms.Clock
	rand          func() float64
	sweepFraction float64
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithSweepFraction sets the share of calls that sweep expired windows.
func WithSweepFraction(f float64) Option {
	return func(l *Limiter) { l.sweepFraction = f }
}

// WithRand replaces the random source used to decide when to sweep.
func WithRand(fn func() float64) Option {
	return func(l *Limiter) { l.rand = fn }
}

// New creates a limiter allowing limit calls per window length.
func New(limit int, length time.Duration, clock cms.Clock, opts ...Option) *Limiter {
	l := &Limiter{
		windows:       make(map[string]*window),
		limit:         limit,
		length:        length,
		clock:         clock,
		rand:          rand.Float64,
		sweepFraction: DefaultSweepFraction,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check counts one call for clientID and reports whether it is allowed.
func (l *Limiter) Check(clientID string) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sweepFraction > 0 && l.rand() < l.sweepFraction {
		l.sweepLocked(now)
	}

	w, ok := l.windows[clientID]
	if !ok || now.After(w.resetTime) {
		w = &window{resetTime: now.Add(l.length)}
		l.windows[clientID] = w
	}
	w.count++

	d := Decision{
		Allowed: w.count <= l.limit,
		Limit:   l.limit,
		ResetAt: w.resetTime,
	}
	if d.Allowed {
		d.Remaining = l.limit - w.count
		return d
	}

	secs := int(math.Ceil(w.resetTime.Sub(now).Seconds()))
	if secs < 1 {
		secs = 1
	}
	d.RetryAfter = time.Duration(secs) * time.Second
	return d
}

// Sweep drops every window whose reset time has passed.
func (l *Limiter) Sweep() int {
	now := l.clock.Now()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sweepLocked(now)
}

func (l *Limiter) sweepLocked(now time.Time) int {
	removed := 0
	for id, w := range l.windows {
		if now.After(w.resetTime) {
			delete(l.windows, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked client windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Limit returns the configured per-window limit.
func (l *Limiter) Limit() int { return l.limit }
