package risk

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store for demo/test use.
type MemoryStore struct {
	mu          sync.RWMutex
	assessments map[string][]*Assessment // userID → assessments
}

// NewMemoryStore creates an in-memory assessment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		assessments: make(map[string][]*Assessment),
	}
}

func (s *MemoryStore) Record(ctx context.Context, assessment *Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *assessment
	a.Components = copyComponents(assessment.Components)
	a.Degraded = append([]string(nil), assessment.Degraded...)

	s.assessments[assessment.UserID] = append(s.assessments[assessment.UserID], &a)
	return nil
}

func (s *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.assessments[userID]
	if len(all) == 0 {
		return nil, nil
	}

	// Return most recent first, up to limit
	start := len(all) - limit
	if start < 0 {
		start = 0
	}

	result := make([]*Assessment, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		a := *all[i]
		a.Components = copyComponents(a.Components)
		a.Degraded = append([]string(nil), a.Degraded...)
		result = append(result, &a)
	}
	return result, nil
}

func copyComponents(in map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
