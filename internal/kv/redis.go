package kv

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"cms-go/internal/cms"
)

// errSwapLost aborts a WATCH transaction whose precondition no longer holds.
var errSwapLost = errors.New("swap precondition failed")

// RedisStore keeps values as plain Redis strings under prefix:key.
// Conditional writes use WATCH/MULTI/EXEC.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client. The store owns the client and
// closes it on Close.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: strings.Trim(prefix, ":")}
}

func (s *RedisStore) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}

// Ping verifies the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, cms.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Swap implements cms.Swapper with an optimistic WATCH transaction.
func (s *RedisStore) Swap(ctx context.Context, key string, prev, next []byte) (bool, error) {
	k := s.key(key)
	err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, k).Bytes()
		exists := true
		if errors.Is(err, redis.Nil) {
			exists = false
		} else if err != nil {
			return err
		}

		if !sameValue(prev, current, exists) {
			return errSwapLost
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, next, 0)
			return nil
		})
		return err
	}, k)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errSwapLost), errors.Is(err, redis.TxFailedErr):
		return false, nil
	default:
		return false, fmt.Errorf("redis swap: %w", err)
	}
}

func (s *RedisStore) Shared() bool { return true }
func (s *RedisStore) Name() string { return "redis" }
func (s *RedisStore) Close() error { return s.rdb.Close() }

// sameValue reports whether the stored value matches the expected one.
// A nil prev expects the key to be absent.
func sameValue(prev, current []byte, exists bool) bool {
	if prev == nil {
		return !exists
	}
	return exists && bytes.Equal(prev, current)
}

var (
	_ cms.Store   = (*RedisStore)(nil)
	_ cms.Swapper = (*RedisStore)(nil)
)
