package store

import (
	"context"
	"sync"

	"github.com/dkeye/parley/internal/core"
)

// MemoryStore keeps blobs in process memory. Used for the "memory" driver and
// in tests.
type MemoryStore struct {
	keys  *keyLocks
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{keys: newKeyLocks(), blobs: make(map[string][]byte)}
}

func (s *MemoryStore) Put(_ context.Context, key string, blob []byte) error {
	defer s.keys.lock(key)()
	cp := make([]byte, len(blob))
	copy(cp, blob)
	s.mu.Lock()
	s.blobs[key] = cp
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	defer s.keys.lock(key)()
	s.mu.Lock()
	delete(s.blobs, key)
	s.mu.Unlock()
	return nil
}

// Len reports the number of live blobs.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

func (s *MemoryStore) Close() error { return nil }
