package calculators

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/internal/logger"
)

// Entry is a stored definition together with its built calculator
type Entry struct {
	Stored     *Stored
	Calculator *calculator.Calculator
}

// Manager keeps a built calculator for every active definition
type Manager struct {
	store   DefinitionStore
	deps    calculator.Deps
	entries map[string]*Entry
	mu      sync.RWMutex
}

func NewManager(store DefinitionStore, deps calculator.Deps) *Manager {
	return &Manager{
		store:   store,
		deps:    deps,
		entries: make(map[string]*Entry),
	}
}

// LoadAll builds every active definition from the store. A definition
// that no longer builds is logged and left out.
func (m *Manager) LoadAll(ctx context.Context) error {
	list, err := m.store.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load calculators: %w", err)
	}

	loaded := make(map[string]*Entry, len(list))
	for _, s := range list {
		calc, err := calculator.Build(s.Definition, m.deps)
		if err != nil {
			logger.Error("Failed to build stored calculator", "id", s.ID, "name", s.Name, "error", err)
			continue
		}
		loaded[s.ID] = &Entry{Stored: s, Calculator: calc}
	}

	m.mu.Lock()
	m.entries = loaded
	m.mu.Unlock()

	logger.Info("Calculators loaded", "count", len(loaded))
	return nil
}

// Create builds def, persists it and makes it available
func (m *Manager) Create(ctx context.Context, def *calculator.Definition) (*Entry, error) {
	calc, err := m.build(def)
	if err != nil {
		return nil, err
	}

	s := &Stored{
		ID:         uuid.NewString(),
		Name:       def.Name,
		Definition: def,
		Active:     true,
	}
	if err := m.store.Add(ctx, s); err != nil {
		return nil, err
	}

	entry := &Entry{Stored: s, Calculator: calc}
	m.mu.Lock()
	m.entries[s.ID] = entry
	m.mu.Unlock()

	logger.Info("Calculator created", "id", s.ID, "name", s.Name)
	return entry, nil
}

// Get returns a calculator by id or by name
func (m *Manager) Get(idOrName string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if e, ok := m.entries[idOrName]; ok {
		return e, nil
	}
	for _, e := range m.entries {
		if e.Stored.Name == idOrName {
			return e, nil
		}
	}
	return nil, fmt.Errorf("calculator %s: %w", idOrName, ErrNotFound)
}

// Update rebuilds a calculator from def and swaps it in. Sessions opened
// before the swap keep the engine they were created with.
func (m *Manager) Update(ctx context.Context, id string, def *calculator.Definition) (*Entry, error) {
	calc, err := m.build(def)
	if err != nil {
		return nil, err
	}

	s, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Name = def.Name
	s.Definition = def
	s.Active = true
	if err := m.store.Update(ctx, s); err != nil {
		return nil, err
	}

	entry := &Entry{Stored: s, Calculator: calc}
	m.mu.Lock()
	m.entries[id] = entry
	m.mu.Unlock()

	logger.Info("Calculator updated", "id", id, "name", s.Name)
	return entry, nil
}

func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	delete(m.entries, id)
	m.mu.Unlock()

	logger.Info("Calculator deleted", "id", id)
	return nil
}

// build compiles def. Every failure, cycles and CEL errors included,
// is reported as an invalid definition.
func (m *Manager) build(def *calculator.Definition) (*calculator.Calculator, error) {
	calc, err := calculator.Build(def, m.deps)
	if err != nil && !errors.Is(err, calculator.ErrInvalidDefinition) {
		return nil, fmt.Errorf("%w: %w", calculator.ErrInvalidDefinition, err)
	}
	return calc, err
}

// List returns the loaded calculators sorted by name
func (m *Manager) List() []*Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]*Entry, 0, len(m.entries))
	for _, e := range m.entries {
		list = append(list, e)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Stored.Name < list[j].Stored.Name })
	return list
}

// EnsureDefault seeds the embedded financial calculator when no
// calculator of that name is loaded.
func (m *Manager) EnsureDefault(ctx context.Context) (*Entry, error) {
	if e, err := m.Get(calculator.DefaultName); err == nil {
		return e, nil
	}

	def, err := calculator.Default()
	if err != nil {
		return nil, err
	}
	e, err := m.Create(ctx, def)
	if errors.Is(err, ErrExists) {
		// stored but inactive or failing to build
		return nil, fmt.Errorf("default calculator exists but is not loaded: %w", err)
	}
	return e, err
}
