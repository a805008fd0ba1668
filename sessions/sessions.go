package sessions

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/recalc"
)

var ErrNotFound = errors.New("session not found")

// Session is one record being edited against a calculator
type Session struct {
	*recalc.Session

	CalculatorID string
	Calculator   *calculator.Calculator
	CreatedAt    time.Time

	last atomic.Pointer[recalc.Result]
}

// LastResult returns the most recent pass shown for this session
func (s *Session) LastResult() *recalc.Result {
	return s.last.Load()
}

// Info is the JSON view of a session
type Info struct {
	ID             string         `json:"id"`
	CalculatorID   string         `json:"calculatorId"`
	CalculatorName string         `json:"calculatorName"`
	State          string         `json:"state"`
	CreatedAt      time.Time      `json:"createdAt"`
	Fields         []fields.Field `json:"fields,omitempty"`
	LastResult     *recalc.Result `json:"lastResult,omitempty"`
}

// Info describes the session, with its fields when withFields is set
func (s *Session) Info(withFields bool) Info {
	info := Info{
		ID:             s.ID(),
		CalculatorID:   s.CalculatorID,
		CalculatorName: s.Calculator.Definition.Name,
		State:          s.State().String(),
		CreatedAt:      s.CreatedAt,
		LastResult:     s.LastResult(),
	}
	if withFields {
		info.Fields = s.Store().Fields()
	}
	return info
}

// Registry keeps the open sessions in memory. It is also a display: every
// pass it is shown becomes the last result of its session.
type Registry struct {
	sessions map[string]*Session
	mu       sync.RWMutex
}

var _ recalc.Display = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Create opens a session on calc. Initial values are stored as they are,
// without running any computation.
func (r *Registry) Create(calculatorID string, calc *calculator.Calculator, initial map[string]any) (*Session, error) {
	store, err := calc.NewStore()
	if err != nil {
		return nil, err
	}
	if len(initial) > 0 {
		if err := store.SetAll(initial); err != nil {
			return nil, fmt.Errorf("invalid initial values: %w", err)
		}
	}

	s := &Session{
		Session:      calc.Engine.NewSession(uuid.NewString(), store),
		CalculatorID: calculatorID,
		Calculator:   calc,
		CreatedAt:    time.Now(),
	}

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	delete(r.sessions, id)
	return nil
}

// List returns the open sessions, oldest first
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		list = append(list, s)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].CreatedAt.Before(list[j].CreatedAt)
	})
	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Refresh records a detached copy of result as the last pass of its
// session
func (r *Registry) Refresh(ctx context.Context, result *recalc.Result) {
	r.mu.RLock()
	s, ok := r.sessions[result.SessionID]
	r.mu.RUnlock()
	if ok {
		s.last.Store(result.Detach())
	}
}
