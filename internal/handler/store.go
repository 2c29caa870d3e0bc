package handler

import (
	"errors"
	"sync"
)

// ErrStoreClosed is returned by store operations after Close
var ErrStoreClosed = errors.New("store is closed")

// MemoryStore is a concurrency-safe key/value store. The server closes it
// on shutdown.
type MemoryStore struct {
	values map[string]any
	closed bool
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]any)}
}

// Set stores value under key
func (s *MemoryStore) Set(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.values[key] = value
	return nil
}

// Get returns the value stored under key
func (s *MemoryStore) Get(key string) (any, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, false, ErrStoreClosed
	}
	value, found := s.values[key]
	return value, found, nil
}

// Len returns the number of stored keys
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Close releases the stored values. Closing twice is a no-op.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.values = nil
	return nil
}
