package archive

import (
	"context"
	"sync"
)

// InMemoryStore keeps archived sessions in process memory. Used when no
// database is configured, and by tests.
type InMemoryStore struct {
	mu      sync.Mutex
	records []Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) SaveSession(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *InMemoryStore) Records() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Record, len(s.records))
	copy(out, s.records)
	return out
}

func (s *InMemoryStore) Close() {}
