package respond

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for demo/test use.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[string][]*Event // userID → events
}

// NewMemoryStore creates an in-memory emergency event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string][]*Event)}
}

func (s *MemoryStore) Record(_ context.Context, event *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := *event
	e.Actions = append([]string(nil), event.Actions...)
	s.events[event.UserID] = append(s.events[event.UserID], &e)
	return nil
}

func (s *MemoryStore) ListByUser(_ context.Context, userID string, limit int) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.events[userID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*Event, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		e := *all[i]
		e.Actions = append([]string(nil), e.Actions...)
		result = append(result, &e)
	}
	return result, nil
}

// MemoryEvidenceStore is an in-memory EvidenceStore for demo/test use.
type MemoryEvidenceStore struct {
	mu      sync.RWMutex
	records map[string][]*EvidenceRecord
}

// NewMemoryEvidenceStore creates an in-memory evidence store.
func NewMemoryEvidenceStore() *MemoryEvidenceStore {
	return &MemoryEvidenceStore{records: make(map[string][]*EvidenceRecord)}
}

func (s *MemoryEvidenceStore) Record(_ context.Context, record *EvidenceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := *record
	s.records[record.UserID] = append(s.records[record.UserID], &r)
	return nil
}

func (s *MemoryEvidenceStore) ListByUser(_ context.Context, userID string, limit int) ([]*EvidenceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.records[userID]
	if len(all) == 0 {
		return nil, nil
	}

	start := len(all) - limit
	if start < 0 {
		start = 0
	}
	result := make([]*EvidenceRecord, 0, len(all)-start)
	for i := len(all) - 1; i >= start; i-- {
		r := *all[i]
		result = append(result, &r)
	}
	return result, nil
}
