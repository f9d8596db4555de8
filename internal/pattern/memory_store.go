package pattern

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and demo mode.
type MemoryStore struct {
	mu        sync.RWMutex
	baselines map[string]*Baseline
}

// Compile-time check.
var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory baseline store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{baselines: make(map[string]*Baseline)}
}

func (s *MemoryStore) SaveBatch(_ context.Context, baselines []*Baseline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range baselines {
		cp := *b
		s.baselines[b.UserID] = &cp
	}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.baselines[userID]
	if !ok {
		return nil, ErrNoBaseline
	}
	cp := *b
	return &cp, nil
}
