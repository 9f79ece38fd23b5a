package archive

import (
	"context"
	"sync"
)

// MemoryStore keeps records in memory. Suitable for tests and short-lived
// processes.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
	closed  bool
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append records one dead-lettered message.
func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	s.records = append(s.records, rec)
	return nil
}

// List returns matching records, oldest first.
func (s *MemoryStore) List(_ context.Context, filter Filter) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	var result []Record
	for _, rec := range s.records {
		if !filter.matches(rec) {
			continue
		}
		result = append(result, rec)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Count returns how many records match.
func (s *MemoryStore) Count(_ context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, ErrStoreClosed
	}
	n := 0
	for _, rec := range s.records {
		if filter.matches(rec) {
			n++
		}
	}
	return n, nil
}

// Close marks the store closed.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.records = nil
	return nil
}
