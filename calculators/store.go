package calculators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/liamcoop/recalc/calculator"
)

var (
	ErrNotFound = errors.New("calculator not found")
	ErrExists   = errors.New("calculator already exists")
)

// Stored is a persisted calculator definition
type Stored struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Definition *calculator.Definition `json:"definition"`
	Active     bool                   `json:"active"`
	CreatedAt  time.Time              `json:"createdAt"`
	UpdatedAt  time.Time              `json:"updatedAt"`
}

// DefinitionStore manages calculator definition persistence
type DefinitionStore interface {
	// Add a new definition; ids and names are unique
	Add(ctx context.Context, c *Stored) error

	Get(ctx context.Context, id string) (*Stored, error)

	// ListActive returns active definitions, oldest first
	ListActive(ctx context.Context) ([]*Stored, error)

	Update(ctx context.Context, c *Stored) error

	Delete(ctx context.Context, id string) error
}

// MemoryStore implements DefinitionStore using an in-memory map
type MemoryStore struct {
	calcs map[string]*Stored
	mu    sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		calcs: make(map[string]*Stored),
	}
}

// Add stores c and sets its timestamps
func (s *MemoryStore) Add(ctx context.Context, c *Stored) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calcs[c.ID]; exists {
		return fmt.Errorf("calculator with ID %s: %w", c.ID, ErrExists)
	}
	if s.nameTaken(c.Name, c.ID) {
		return fmt.Errorf("calculator named %s: %w", c.Name, ErrExists)
	}

	now := time.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	cp := *c
	s.calcs[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.calcs[id]
	if !exists {
		return nil, fmt.Errorf("calculator with ID %s: %w", id, ErrNotFound)
	}
	cp := *c
	return &cp, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]*Stored, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*Stored
	for _, c := range s.calcs {
		if c.Active {
			cp := *c
			active = append(active, &cp)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	return active, nil
}

// Update replaces an existing definition, preserving CreatedAt
func (s *MemoryStore) Update(ctx context.Context, c *Stored) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.calcs[c.ID]
	if !exists {
		return fmt.Errorf("calculator with ID %s: %w", c.ID, ErrNotFound)
	}
	if s.nameTaken(c.Name, c.ID) {
		return fmt.Errorf("calculator named %s: %w", c.Name, ErrExists)
	}

	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now()
	cp := *c
	s.calcs[c.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.calcs[id]; !exists {
		return fmt.Errorf("calculator with ID %s: %w", id, ErrNotFound)
	}
	delete(s.calcs, id)
	return nil
}

func (s *MemoryStore) nameTaken(name, id string) bool {
	for _, c := range s.calcs {
		if c.Name == name && c.ID != id {
			return true
		}
	}
	return false
}
