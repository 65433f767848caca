package storage

import (
	"context"
	"os"
	"sync"
)

// MemoryStore keeps the state blob in process memory.
type MemoryStore struct {
	mu   sync.Mutex
	data []byte
	// Err, when set, is returned by Save.
	Err error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreFromFile preloads the store with a JSON snapshot. A missing
// file leaves the store empty.
func NewMemoryStoreFromFile(path string) *MemoryStore {
	s := &MemoryStore{}
	if b, err := os.ReadFile(path); err == nil && len(b) > 0 {
		s.data = b
	}
	return s
}

// Load implements StateStore.
func (s *MemoryStore) Load(_ context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		return nil, ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

// Save implements StateStore.
func (s *MemoryStore) Save(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	s.data = append([]byte(nil), data...)
	return nil
}
