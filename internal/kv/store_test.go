package kv

import (
	"context"
	"errors"
	"testing"

	"cms-go/internal/cms"
)

// testStoreContract exercises the behavior every backend must share.
// Values are JSON so the remote backend accepts them.
func testStoreContract(t *testing.T, s cms.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		if _, err := s.Get(ctx, "missing"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("set then get", func(t *testing.T) {
		if err := s.Set(ctx, "a", []byte(`{"n":1}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := s.Get(ctx, "a")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `{"n":1}` {
			t.Errorf("Get() = %s, want %s", got, `{"n":1}`)
		}
	})

	t.Run("overwrite", func(t *testing.T) {
		if err := s.Set(ctx, "b", []byte(`{"n":1}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Set(ctx, "b", []byte(`{"n":2}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := s.Get(ctx, "b")
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `{"n":2}` {
			t.Errorf("Get() = %s, want %s", got, `{"n":2}`)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Set(ctx, "c", []byte(`true`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		if err := s.Delete(ctx, "c"); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
		if _, err := s.Get(ctx, "c"); !errors.Is(err, cms.ErrNotFound) {
			t.Errorf("Get() after Delete error = %v, want ErrNotFound", err)
		}
		if err := s.Delete(ctx, "c"); err != nil {
			t.Errorf("Delete() of missing key error = %v", err)
		}
	})

	t.Run("keys with separators", func(t *testing.T) {
		key := "versioned:messages/board 1"
		if err := s.Set(ctx, key, []byte(`[1,2]`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		got, err := s.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if string(got) != `[1,2]` {
			t.Errorf("Get() = %s, want %s", got, `[1,2]`)
		}
	})
}

// testSwapContract exercises cms.Swapper semantics.
func testSwapContract(t *testing.T, s cms.Store) {
	t.Helper()
	ctx := context.Background()

	sw, ok := s.(cms.Swapper)
	if !ok {
		t.Fatalf("%s store does not implement cms.Swapper", s.Name())
	}

	t.Run("create when absent", func(t *testing.T) {
		ok, err := sw.Swap(ctx, "swap-new", nil, []byte(`{"v":1}`))
		if err != nil || !ok {
			t.Fatalf("Swap(nil) = %v, %v; want true, nil", ok, err)
		}
		ok, err = sw.Swap(ctx, "swap-new", nil, []byte(`{"v":9}`))
		if err != nil || ok {
			t.Fatalf("second Swap(nil) = %v, %v; want false, nil", ok, err)
		}
		got, _ := s.Get(ctx, "swap-new")
		if string(got) != `{"v":1}` {
			t.Errorf("Get() = %s, want %s", got, `{"v":1}`)
		}
	})

	t.Run("replace matching value", func(t *testing.T) {
		if err := s.Set(ctx, "swap-cur", []byte(`{"v":1}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		ok, err := sw.Swap(ctx, "swap-cur", []byte(`{"v":1}`), []byte(`{"v":2}`))
		if err != nil || !ok {
			t.Fatalf("Swap() = %v, %v; want true, nil", ok, err)
		}
		got, _ := s.Get(ctx, "swap-cur")
		if string(got) != `{"v":2}` {
			t.Errorf("Get() = %s, want %s", got, `{"v":2}`)
		}
	})

	t.Run("stale prev loses", func(t *testing.T) {
		if err := s.Set(ctx, "swap-stale", []byte(`{"v":5}`)); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		ok, err := sw.Swap(ctx, "swap-stale", []byte(`{"v":4}`), []byte(`{"v":6}`))
		if err != nil || ok {
			t.Fatalf("Swap() = %v, %v; want false, nil", ok, err)
		}
		got, _ := s.Get(ctx, "swap-stale")
		if string(got) != `{"v":5}` {
			t.Errorf("Get() = %s, want %s", got, `{"v":5}`)
		}
	})

	t.Run("prev given but key absent", func(t *testing.T) {
		ok, err := sw.Swap(ctx, "swap-gone", []byte(`{"v":1}`), []byte(`{"v":2}`))
		if err != nil || ok {
			t.Fatalf("Swap() = %v, %v; want false, nil", ok, err)
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStoreContract(t, s)

	if s.Shared() {
		t.Error("Shared() = true, want false")
	}
	if _, ok := any(s).(cms.Swapper); ok {
		t.Error("MemoryStore implements cms.Swapper, want plain store")
	}
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	value := []byte(`{"n":1}`)
	if err := s.Set(ctx, "k", value); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	value[2] = 'x'

	got, _ := s.Get(ctx, "k")
	got[2] = 'y'

	again, _ := s.Get(ctx, "k")
	if string(again) != `{"n":1}` {
		t.Errorf("stored value mutated through caller slices: %s", again)
	}
	if len(s.Keys()) != 1 {
		t.Errorf("Keys() = %v, want one key", s.Keys())
	}
}
