package records

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps records in a map. Safe for concurrent use.
type MemoryStore struct {
	records map[string]*Record
	mu      sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*Record),
	}
}

func (s *MemoryStore) Lookup(ctx context.Context, entityType, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key(entityType, id)]
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	cp := *rec
	return &cp, nil
}

// Put inserts or replaces a record and stamps UpdatedAt
func (s *MemoryStore) Put(ctx context.Context, rec *Record) error {
	if rec.EntityType == "" || rec.ID == "" {
		return fmt.Errorf("record needs an entity type and an id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec.UpdatedAt = time.Now()
	cp := *rec
	s.records[key(rec.EntityType, rec.ID)] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, entityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key(entityType, id)
	if _, ok := s.records[k]; !ok {
		return fmt.Errorf("%s %s: %w", entityType, id, ErrNotFound)
	}
	delete(s.records, k)
	return nil
}
