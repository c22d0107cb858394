package kv

import (
	"context"
	"errors"
	"fmt"

	"cms-go/internal/cms"
)

// Failure decides what a failed backend call turns into.
type Failure int

const (
	// FailClosed returns the error to the caller.
	FailClosed Failure = iota
	// FailOpen logs the error and reports the key as absent.
	FailOpen
)

func (f Failure) String() string {
	if f == FailOpen {
		return "fail-open"
	}
	return "fail-closed"
}

// Policy is the error policy applied on top of a backend.
type Policy struct {
	Reads  Failure
	Writes Failure
}

// DefaultPolicy treats an unreadable value as absent and never hides a
// failed write. Callers of Get must accept that ErrNotFound may mean
// "value lost due to error".
var DefaultPolicy = Policy{Reads: FailOpen, Writes: FailClosed}

// PolicyStore applies a Policy to every call of the wrapped backend.
type PolicyStore struct {
	inner  cms.Store
	policy Policy
	logger cms.Logger
	errs   func(backend, op string)
}

// PolicyOption configures a PolicyStore.
type PolicyOption func(*PolicyStore)

// WithErrorHook registers a callback invoked for every backend error,
// including errors that the policy swallows.
func WithErrorHook(fn func(backend, op string)) PolicyOption {
	return func(p *PolicyStore) { p.errs = fn }
}

// WithPolicy wraps inner so that reads and writes follow policy. The result
// implements cms.Swapper exactly when inner does.
func WithPolicy(inner cms.Store, policy Policy, logger cms.Logger, opts ...PolicyOption) cms.Store {
	p := &PolicyStore{inner: inner, policy: policy, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	if sw, ok := inner.(cms.Swapper); ok {
		return &swappingPolicyStore{PolicyStore: p, swapper: sw}
	}
	return p
}

func (p *PolicyStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := p.inner.Get(ctx, key)
	if err == nil || errors.Is(err, cms.ErrNotFound) {
		return value, err
	}
	p.report("get")
	if p.policy.Reads == FailOpen {
		p.logger.Warn("kv read failed, treating key as absent", "backend", p.inner.Name(), "key", key, "error", err)
		return nil, cms.ErrNotFound
	}
	return nil, fmt.Errorf("reading %q from %s: %w", key, p.inner.Name(), err)
}

func (p *PolicyStore) Set(ctx context.Context, key string, value []byte) error {
	return p.write("set", key, p.inner.Set(ctx, key, value))
}

func (p *PolicyStore) Delete(ctx context.Context, key string) error {
	return p.write("delete", key, p.inner.Delete(ctx, key))
}

func (p *PolicyStore) write(op, key string, err error) error {
	if err == nil {
		return nil
	}
	p.report(op)
	if p.policy.Writes == FailOpen {
		p.logger.Warn("kv write failed, ignoring", "backend", p.inner.Name(), "op", op, "key", key, "error", err)
		return nil
	}
	return fmt.Errorf("%s %q on %s: %w", op, key, p.inner.Name(), err)
}

func (p *PolicyStore) report(op string) {
	if p.errs != nil {
		p.errs(p.inner.Name(), op)
	}
}

func (p *PolicyStore) Shared() bool { return p.inner.Shared() }
func (p *PolicyStore) Name() string { return p.inner.Name() }
func (p *PolicyStore) Close() error { return p.inner.Close() }

// Unwrap returns the backend under the policy.
func (p *PolicyStore) Unwrap() cms.Store { return p.inner }

type swappingPolicyStore struct {
	*PolicyStore
	swapper cms.Swapper
}

// Swap never fails open: a swallowed error would read as a successful write.
func (p *swappingPolicyStore) Swap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	swapped, err := p.swapper.Swap(ctx, key, prev, next)
	if err != nil {
		p.report("swap")
		return false, fmt.Errorf("swap %q on %s: %w", key, p.inner.Name(), err)
	}
	return swapped, nil
}

var (
	_ cms.Store   = (*PolicyStore)(nil)
	_ cms.Swapper = (*swappingPolicyStore)(nil)
)
