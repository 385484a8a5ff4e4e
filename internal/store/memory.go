package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps artifacts in process memory. It is used by tests and by
// the "memory" backend for throwaway deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string][]byte
}

var _ ScenarioStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string][]byte)}
}

// Put stores a copy of artifact under key.
func (s *MemoryStore) Put(ctx context.Context, key string, artifact []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts[FileName(key)] = append([]byte(nil), artifact...)
	return nil
}

// Get returns a copy of the artifact stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[FileName(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), a...), nil
}

// Delete removes the artifact under key if present.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.artifacts, FileName(key))
	return nil
}

// Names lists the stored artifact names in lexical order.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.artifacts))
	for name := range s.artifacts {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
