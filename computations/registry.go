package computations

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	ErrDuplicateName      = errors.New("duplicate name")
	ErrUnknownComputation = errors.New("unknown computation")
	ErrCyclicDependency   = errors.New("cyclic dependency")
	ErrInvalidComputation = errors.New("invalid computation")
)

// Evaluator runs the body of a computation. It receives a copy of the
// set values of the computation's declared inputs and returns the values
// of its outputs.
type Evaluator interface {
	Invoke(ctx context.Context, computation string, values map[string]any) (map[string]any, error)
}

// EvaluatorFunc adapts a function to Evaluator
type EvaluatorFunc func(ctx context.Context, computation string, values map[string]any) (map[string]any, error)

func (f EvaluatorFunc) Invoke(ctx context.Context, computation string, values map[string]any) (map[string]any, error) {
	return f(ctx, computation, values)
}

// Computation declares a derived calculation: the fields it needs, the
// fields it writes and the collaborator that evaluates it.
type Computation struct {
	Name        string
	Description string

	// RequiredInputs must all be present for the computation to run
	RequiredInputs []string
	// OptionalInputs are read when set but do not gate execution
	OptionalInputs []string
	Outputs        []string

	Evaluator Evaluator
}

// Inputs returns required and optional inputs
func (c *Computation) Inputs() []string {
	out := make([]string, 0, len(c.RequiredInputs)+len(c.OptionalInputs))
	out = append(out, c.RequiredInputs...)
	return append(out, c.OptionalInputs...)
}

// Writes reports whether field is one of the outputs
func (c *Computation) Writes(field string) bool {
	for _, o := range c.Outputs {
		if o == field {
			return true
		}
	}
	return false
}

// Reads reports whether field is a required or optional input
func (c *Computation) Reads(field string) bool {
	for _, in := range c.RequiredInputs {
		if in == field {
			return true
		}
	}
	for _, in := range c.OptionalInputs {
		if in == field {
			return true
		}
	}
	return false
}

// Validate checks the declaration invariants
func (c *Computation) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("computation name is empty: %w", ErrInvalidComputation)
	}
	if len(c.Outputs) == 0 {
		return fmt.Errorf("computation %s declares no outputs: %w", c.Name, ErrInvalidComputation)
	}
	if c.Evaluator == nil {
		return fmt.Errorf("computation %s has no evaluator: %w", c.Name, ErrInvalidComputation)
	}

	seen := make(map[string]bool, len(c.Outputs))
	for _, o := range c.Outputs {
		if seen[o] {
			return fmt.Errorf("computation %s lists output %s twice: %w", c.Name, o, ErrInvalidComputation)
		}
		seen[o] = true
		if c.Reads(o) {
			return fmt.Errorf("computation %s writes its own input %s: %w", c.Name, o, ErrCyclicDependency)
		}
	}
	return nil
}

// Registry holds computation declarations by name, preserving
// registration order. Safe for concurrent use.
type Registry struct {
	computations map[string]*Computation
	order        []string
	mu           sync.RWMutex
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		computations: make(map[string]*Computation),
	}
}

// Register adds a computation
func (r *Registry) Register(c *Computation) error {
	if c == nil {
		return fmt.Errorf("nil computation: %w", ErrInvalidComputation)
	}
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.computations[c.Name]; exists {
		return fmt.Errorf("computation %s already registered: %w", c.Name, ErrDuplicateName)
	}

	r.computations[c.Name] = c
	r.order = append(r.order, c.Name)
	return nil
}

// Resolve returns the computation registered under name
func (r *Registry) Resolve(name string) (*Computation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.computations[name]
	if !exists {
		return nil, fmt.Errorf("computation %s: %w", name, ErrUnknownComputation)
	}
	return c, nil
}

// List returns every computation in registration order
func (r *Registry) List() []*Computation {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Computation, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.computations[name])
	}
	return out
}

// Len returns the number of registered computations
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
