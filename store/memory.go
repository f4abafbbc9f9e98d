package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-process ObjectStore for tests and local runs.
// It is safe for concurrent use; PutIfAbsent is atomic with respect to
// other operations on the same store.
type MemoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string][]byte),
	}
}

// Get returns the object body, or ErrNotFound.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body, ok := s.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(body))
	copy(out, body)
	return out, nil
}

// Put writes the object unconditionally.
func (s *MemoryStore) Put(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.objects[key] = append([]byte(nil), body...)
	return nil
}

// PutIfAbsent writes the object only if the key does not exist.
func (s *MemoryStore) PutIfAbsent(ctx context.Context, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; ok {
		return ErrPreconditionFailed
	}
	s.objects[key] = append([]byte(nil), body...)
	return nil
}

// Delete removes the object. Missing keys are ignored.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.objects, key)
	return nil
}

// Len returns the number of stored objects.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

var _ ObjectStore = (*MemoryStore)(nil)
