package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps records in process memory. Sessions are lost on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]Record)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Record, error) {
	if key == "" {
		return nil, ErrInvalidKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[key]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, rec Record) error {
	if key == "" {
		return ErrInvalidKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.records[key]; ok && rec.CreatedAt.IsZero() {
		rec.CreatedAt = existing.CreatedAt
	}
	s.records[key] = rec
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

// PurgeInactive removes records without a token that were last touched
// before cutoff.
func (s *MemoryStore) PurgeInactive(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, rec := range s.records {
		if !rec.Active() && rec.UpdatedAt.Before(cutoff) {
			delete(s.records, key)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
