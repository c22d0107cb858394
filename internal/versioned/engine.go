// Package versioned implements optimistic read-modify-write updates of
// JSON records held in a cms.Store.
//
// Each update reads the current record, runs a caller-supplied reducer,
// writes the result with the next version number and then confirms the
// write:
//
//   - stores implementing cms.Swapper make the write conditional on the
//     value read, so a concurrent writer turns into a retry instead of a
//     lost update;
//   - other shared stores are read back and the version compared. This is
//     advisory only: two writers interleaving between read and write can
//     still both see their own version and one update is lost;
//   - stores that are not shared need no confirmation.
//
// Updates of the same key within one process are serialized by a per-key
// lock, so the read-back check only has to guard against other processes.
package versioned

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cms-go/internal/cms"
)

// ErrConflict is wrapped by the error returned when every attempt lost.
var ErrConflict = errors.New("version conflict")

// DefaultMaxRetries is the number of attempts Update makes.
const DefaultMaxRetries = 3

// Engine runs versioned updates against one store.
type Engine struct {
	store      cms.Store
	clock      cms.Clock
	logger     cms.Logger
	maxRetries int
	backoff    func(attempt int) time.Duration
	observe    func(key string, attempts int, err error)
	locks      *keyLocks
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxRetries sets how many attempts Update makes before giving up.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithBackoff replaces the wait between attempts. The default waits
// 100ms times the attempt number.
func WithBackoff(fn func(attempt int) time.Duration) Option {
	return func(e *Engine) { e.backoff = fn }
}

// WithObserver registers a callback run after every Update with the number
// of attempts made and the final error, if any.
func WithObserver(fn func(key string, attempts int, err error)) Option {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine creates an Engine over store.
func NewEngine(store cms.Store, clock cms.Clock, logger cms.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		clock:      clock,
		logger:     logger,
		maxRetries: DefaultMaxRetries,
		backoff:    LinearBackoff(100 * time.Millisecond),
		locks:      newKeyLocks(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LinearBackoff waits step times the attempt number.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Store returns the store the engine writes to.
func (e *Engine) Store() cms.Store { return e.store }

// Update applies reduce to the record under key and stores the result as
// the next version. reduce receives nil when the key holds no record. A
// reducer error aborts the update without writing or retrying and is
// returned unchanged.
func Update[T any](ctx context.Context, e *Engine, key string, reduce func(current *T) (T, error)) (Record[T], error) {
	release, err := e.locks.acquire(ctx, key)
	if err != nil {
		return Record[T]{}, fmt.Errorf("waiting for key %q: %w", key, err)
	}
	defer release()

	rec, attempts, err := update(ctx, e, key, reduce)
	if e.observe != nil {
		e.observe(key, attempts, err)
	}
	return rec, err
}

func update[T any](ctx context.Context, e *Engine, key string, reduce func(*T) (T, error)) (Record[T], int, error) {
	storeKey := StoreKey(key)
	swapper, canSwap := e.store.(cms.Swapper)

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		raw, err := e.store.Get(ctx, storeKey)
		if err != nil && !errors.Is(err, cms.ErrNotFound) {
			return Record[T]{}, attempt, fmt.Errorf("reading %q: %w", key, err)
		}

		var (
			current Record[T]
			data    *T
		)
		if err == nil {
			if current, err = decodeRecord[T](key, raw); err != nil {
				return Record[T]{}, attempt, err
			}
			data = &current.Data
		} else {
			raw = nil
		}

		next, err := reduce(data)
		if err != nil {
			return Record[T]{}, attempt, err
		}

		rec := Record[T]{
			Data:      next,
			Version:   current.Version + 1,
			UpdatedAt: e.clock.Now().UTC(),
		}
		payload, err := json.Marshal(rec)
		if err != nil {
			return Record[T]{}, attempt, fmt.Errorf("encoding record %q: %w", key, err)
		}

		var committed bool
		switch {
		case canSwap:
			committed, err = swapper.Swap(ctx, storeKey, raw, payload)
		default:
			committed, err = e.writeAndConfirm(ctx, storeKey, payload, rec.Version)
		}
		if err != nil {
			return Record[T]{}, attempt, fmt.Errorf("writing %q: %w", key, err)
		}
		if committed {
			return rec, attempt, nil
		}

		e.logger.Debug("versioned update conflict", "key", key, "attempt", attempt, "version", rec.Version)
		if attempt < e.maxRetries {
			if err := sleep(ctx, e.backoff(attempt)); err != nil {
				return Record[T]{}, attempt, err
			}
		}
	}

	e.logger.Warn("versioned update gave up", "key", key, "attempts", e.maxRetries)
	return Record[T]{}, e.maxRetries, fmt.Errorf("could not update key %q after %d attempts: %w", key, e.maxRetries, ErrConflict)
}

// writeAndConfirm writes payload and, on a shared store, reads it back.
// An unreadable or mismatched read-back counts as a conflict.
func (e *Engine) writeAndConfirm(ctx context.Context, storeKey string, payload []byte, version int64) (bool, error) {
	if err := e.store.Set(ctx, storeKey, payload); err != nil {
		return false, err
	}
	if !e.store.Shared() {
		return true, nil
	}

	raw, err := e.store.Get(ctx, storeKey)
	if err != nil {
		return false, nil
	}
	got, err := recordVersion(raw)
	if err != nil {
		return false, nil
	}
	return got == version, nil
}

// Get returns the record under key, or cms.ErrNotFound.
func Get[T any](ctx context.Context, e *Engine, key string) (Record[T], error) {
	raw, err := e.store.Get(ctx, StoreKey(key))
	if err != nil {
		return Record[T]{}, err
	}
	return decodeRecord[T](key, raw)
}

// Delete removes the record under key. It is the administrative delete;
// domain code never deletes records.
func Delete(ctx context.Context, e *Engine, key string) error {
	release, err := e.locks.acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("waiting for key %q: %w", key, err)
	}
	defer release()

	return e.store.Delete(ctx, StoreKey(key))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
