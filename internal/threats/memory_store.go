package threats

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kavachapp/kavach/internal/idgen"
)

// MemoryStore implements Store with in-memory storage.
type MemoryStore struct {
	events []*Event
	mu     sync.RWMutex
}

// NewMemoryStore creates a new in-memory signal store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Record(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *event
	if cp.ID == "" {
		cp.ID = idgen.WithPrefix("evt")
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	s.events = append(s.events, &cp)
	event.ID = cp.ID
	event.CreatedAt = cp.CreatedAt
	return nil
}

func (s *MemoryStore) RecentForUser(_ context.Context, userID string, since time.Time) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*Event
	for _, e := range s.events {
		if e.UserID == userID && !e.Timestamp.Before(since) {
			cp := *e
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *MemoryStore) UsersSince(_ context.Context, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var users []string
	for _, e := range s.events {
		if !e.Timestamp.Before(since) && !seen[e.UserID] {
			seen[e.UserID] = true
			users = append(users, e.UserID)
		}
	}
	return users, nil
}

func (s *MemoryStore) CountForUser(_ context.Context, userID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.events {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}
