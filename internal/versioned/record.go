package versioned

import (
	"encoding/json"
	"fmt"
	"time"
)

// KeyPrefix is prepended to every logical key before it reaches the store.
const KeyPrefix = "versioned:"

// Record is the envelope stored under a versioned key. Version grows by
// exactly one on every successful update; the first write produces 1.
type Record[T any] struct {
	Data      T         `json:"data"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StoreKey returns the backend key for a logical key.
func StoreKey(key string) string {
	return KeyPrefix + key
}

func decodeRecord[T any](key string, raw []byte) (Record[T], error) {
	var rec Record[T]
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record[T]{}, fmt.Errorf("decoding record %q: %w", key, err)
	}
	if rec.Version < 0 {
		return Record[T]{}, fmt.Errorf("record %q has negative version %d", key, rec.Version)
	}
	return rec, nil
}

// recordVersion extracts only the version field, for read-back checks.
func recordVersion(raw []byte) (int64, error) {
	var v struct {
		Version int64 `json:"version"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, err
	}
	return v.Version, nil
}
