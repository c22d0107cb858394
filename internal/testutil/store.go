package testutil

import (
	"context"
	"errors"
	"sync"

	"cms-go/internal/cms"
)

// ErrInjected is the error returned by FaultyStore when a fault is armed.
var ErrInjected = errors.New("injected backend failure")

// FaultyStore is a process-local store whose operations can be made to fail.
type FaultyStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	shared  bool
	failGet bool
	failSet bool
	failDel bool
	sets    int
}

// NewFaultyStore creates an empty FaultyStore. shared sets the Shared result.
func NewFaultyStore(shared bool) *FaultyStore {
	return &FaultyStore{data: make(map[string][]byte), shared: shared}
}

// FailGets makes every Get return ErrInjected until called with false.
func (s *FaultyStore) FailGets(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failGet = fail
}

// FailSets makes every Set return ErrInjected until called with false.
func (s *FaultyStore) FailSets(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failSet = fail
}

// FailDeletes makes every Delete return ErrInjected until called with false.
func (s *FaultyStore) FailDeletes(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failDel = fail
}

// Sets returns how many Set calls reached the store, failed or not.
func (s *FaultyStore) Sets() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets
}

func (s *FaultyStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return nil, ErrInjected
	}
	v, ok := s.data[key]
	if !ok {
		return nil, cms.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *FaultyStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	if s.failSet {
		return ErrInjected
	}
	s.data[key] = append([]byte(nil), value...)
	return nil
}

func (s *FaultyStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel {
		return ErrInjected
	}
	delete(s.data, key)
	return nil
}

func (s *FaultyStore) Shared() bool { return s.shared }
func (s *FaultyStore) Name() string { return "faulty" }
func (s *FaultyStore) Close() error { return nil }

// LaggingStore is a shared store whose reads trail its writes: a value
// becomes visible only after Lag further Get calls on that key. It models
// an eventually consistent remote service.
type LaggingStore struct {
	mu      sync.Mutex
	visible map[string][]byte
	pending map[string][]byte
	reads   map[string]int
	Lag     int
	// Interfere, when set, is called after every Set with the key written.
	// Tests use it to simulate another writer racing this process.
	Interfere func(key string, s *LaggingStore)
}

// NewLaggingStore creates a LaggingStore with the given read lag.
func NewLaggingStore(lag int) *LaggingStore {
	return &LaggingStore{
		visible: make(map[string][]byte),
		pending: make(map[string][]byte),
		reads:   make(map[string]int),
		Lag:     lag,
	}
}

// Put stores value immediately, bypassing the lag.
func (s *LaggingStore) Put(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visible[key] = append([]byte(nil), value...)
	delete(s.pending, key)
}

func (s *LaggingStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[key]; ok {
		s.reads[key]++
		if s.reads[key] > s.Lag {
			s.visible[key] = p
			delete(s.pending, key)
		}
	}
	v, ok := s.visible[key]
	if !ok {
		return nil, cms.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (s *LaggingStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	if s.Lag == 0 {
		s.visible[key] = append([]byte(nil), value...)
	} else {
		s.pending[key] = append([]byte(nil), value...)
		s.reads[key] = 0
	}
	interfere := s.Interfere
	s.mu.Unlock()

	if interfere != nil {
		interfere(key, s)
	}
	return nil
}

func (s *LaggingStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.visible, key)
	delete(s.pending, key)
	return nil
}

func (s *LaggingStore) Shared() bool { return true }
func (s *LaggingStore) Name() string { return "lagging" }
func (s *LaggingStore) Close() error { return nil }

var (
	_ cms.Store = (*FaultyStore)(nil)
	_ cms.Store = (*LaggingStore)(nil)
)
