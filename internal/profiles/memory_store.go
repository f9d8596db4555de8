package profiles

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	profiles map[string]*Profile
	mu       sync.RWMutex
}

// NewMemoryStore creates a new in-memory profile store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{profiles: make(map[string]*Profile)}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	cp.Contacts = append([]Contact(nil), p.Contacts...)
	cp.HighRiskAreas = append([]Area(nil), p.HighRiskAreas...)
	return &cp, nil
}

func (s *MemoryStore) Put(_ context.Context, profile *Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *profile
	cp.Contacts = append([]Contact(nil), profile.Contacts...)
	cp.HighRiskAreas = append([]Area(nil), profile.HighRiskAreas...)
	if existing, ok := s.profiles[profile.UserID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.profiles[profile.UserID] = &cp
	return nil
}
