package kv

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "cms")
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore(t *testing.T) {
	s, _ := newTestRedisStore(t)
	testStoreContract(t, s)
	testSwapContract(t, s)

	if !s.Shared() {
		t.Error("Shared() = false, want true")
	}
}

func TestRedisStore_Prefix(t *testing.T) {
	s, mr := newTestRedisStore(t)

	if err := s.Set(context.Background(), "visitors", []byte(`{}`)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	got, err := mr.Get("cms:visitors")
	if err != nil {
		t.Fatalf("miniredis Get() error = %v", err)
	}
	if got != `{}` {
		t.Errorf("raw value = %q, want %q", got, `{}`)
	}
}

func TestRedisStore_Ping(t *testing.T) {
	s, mr := newTestRedisStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() after server shutdown expected error")
	}
}
