package resultstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("result not found")

// InMemoryStore keeps results in process, for local/dev runs and tests.
type InMemoryStore struct {
	mu      sync.RWMutex
	records []Record
	byCall  map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byCall: make(map[string]int)}
}

func (s *InMemoryStore) Save(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.byCall[record.Result.CallID] = len(s.records)
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, callID string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byCall[callID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return s.records[idx], nil
}

func (s *InMemoryStore) Recent(_ context.Context, limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]Record, 0, limit)
	for i := len(s.records) - 1; i >= len(s.records)-limit; i-- {
		out = append(out, s.records[i])
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
