package cms

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Store.Get when a key holds no value.
var ErrNotFound = errors.New("key not found")

// Store is the uniform key/value contract every storage backend satisfies.
// Values are opaque bytes; the versioned engine stores JSON documents.
type Store interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Shared reports whether processes other than this one may write the
	// same keys. Writes to a store that is not shared are never contested
	// once the caller holds its in-process key lock.
	Shared() bool

	// Name identifies the backend in logs and metrics.
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Swapper is implemented by backends that offer an atomic conditional write.
//
// Swap stores next under key only if the current value equals prev. A nil
// prev means the key must be absent. It reports whether the write happened;
// a false result with a nil error is a lost race, not a failure.
type Swapper interface {
	Swap(ctx context.Context, key string, prev, next []byte) (bool, error)
}
