package recalc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/liamcoop/recalc/computations"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/internal/logger"
)

// Display receives the result of every pass. Implementations must not keep
// the result past the call; it may still be extended with cascades.
type Display interface {
	Refresh(ctx context.Context, result *Result)
}

// DisplayFunc adapts a function to Display
type DisplayFunc func(ctx context.Context, result *Result)

func (f DisplayFunc) Refresh(ctx context.Context, result *Result) {
	f(ctx, result)
}

// Config is the static declaration of an engine
type Config struct {
	Bindings     []Binding
	Groups       []Group
	DefaultGroup string
}

// Option customises an Engine
type Option func(*Engine)

// WithDisplay sets the collaborator notified after every pass
func WithDisplay(d Display) Option {
	return func(e *Engine) {
		e.display = d
	}
}

// WithMaxParallelism bounds how many evaluator calls of one pass run at
// the same time. Values below 1 mean 1.
func WithMaxParallelism(n int) Option {
	return func(e *Engine) {
		if n < 1 {
			n = 1
		}
		e.maxParallelism = n
	}
}

type groupPlan struct {
	Group
	plan *plan
}

// Engine decides which computations run when a field changes and runs
// them. It holds configuration only; per-record state lives in the field
// store and the Session serializing passes over it.
type Engine struct {
	registry       *computations.Registry
	bindings       map[string]*plan
	groups         map[string]*groupPlan
	defaultGroup   string
	display        Display
	maxParallelism int
}

// New validates the configuration against the registry and builds the
// execution plans. Unknown computations, duplicate triggers or groups and
// cycles among trigger -> output edges are rejected here so they can
// never surface while a pass runs.
func New(reg *computations.Registry, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		registry:       reg,
		bindings:       make(map[string]*plan, len(cfg.Bindings)),
		groups:         make(map[string]*groupPlan, len(cfg.Groups)),
		defaultGroup:   cfg.DefaultGroup,
		maxParallelism: 8,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, b := range cfg.Bindings {
		if b.Trigger == "" {
			return nil, fmt.Errorf("binding without trigger field: %w", computations.ErrInvalidComputation)
		}
		if _, exists := e.bindings[b.Trigger]; exists {
			return nil, fmt.Errorf("trigger %s bound twice: %w", b.Trigger, ErrDuplicateName)
		}
		p, err := buildPlan(reg, b.Computations)
		if err != nil {
			return nil, fmt.Errorf("binding for %s: %w", b.Trigger, err)
		}
		p.editsOnly = b.EditsOnly
		e.bindings[b.Trigger] = p
	}

	if err := checkCycles(reg, cfg.Bindings); err != nil {
		return nil, err
	}

	for _, g := range cfg.Groups {
		if g.Name == "" {
			return nil, fmt.Errorf("group without name: %w", computations.ErrInvalidComputation)
		}
		if _, exists := e.groups[g.Name]; exists {
			return nil, fmt.Errorf("group %s declared twice: %w", g.Name, ErrDuplicateName)
		}
		p, err := buildPlan(reg, g.Computations)
		if err != nil {
			return nil, fmt.Errorf("group %s: %w", g.Name, err)
		}
		e.groups[g.Name] = &groupPlan{Group: g, plan: p}
	}

	if e.defaultGroup != "" {
		if _, ok := e.groups[e.defaultGroup]; !ok {
			return nil, fmt.Errorf("default group %s: %w", e.defaultGroup, ErrUnknownGroup)
		}
	}

	return e, nil
}

// Registry returns the registry the engine was built from
func (e *Engine) Registry() *computations.Registry {
	return e.registry
}

// IsTrigger reports whether field has a binding
func (e *Engine) IsTrigger(field string) bool {
	_, ok := e.bindings[field]
	return ok
}

// Cascades reports whether a write to field by a computation schedules a
// pass of its own
func (e *Engine) Cascades(field string) bool {
	p, ok := e.bindings[field]
	return ok && !p.editsOnly
}

// Triggers returns the bound fields, sorted
func (e *Engine) Triggers() []string {
	out := make([]string, 0, len(e.bindings))
	for t := range e.bindings {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Group returns a full recalculation group by name
func (e *Engine) Group(name string) (Group, bool) {
	g, ok := e.groups[name]
	if !ok {
		return Group{}, false
	}
	return g.Group, true
}

// DefaultGroup is the group run by Session.RunAll
func (e *Engine) DefaultGroup() string {
	return e.defaultGroup
}

// NewSession binds a field store to the engine. All passes over that store
// must go through the returned session.
func (e *Engine) NewSession(id string, store *fields.Store) *Session {
	return &Session{
		id:     id,
		engine: e,
		store:  store,
	}
}

// runTrigger runs the binding of trigger. The boolean is false when the
// field has no binding, in which case the result is empty.
func (e *Engine) runTrigger(ctx context.Context, store *fields.Store, trigger string, setState func(State)) (*Result, bool) {
	res := newResult()
	res.Trigger = trigger

	p, ok := e.bindings[trigger]
	if !ok {
		res.collect()
		res.Duration = time.Since(res.StartedAt)
		return res, false
	}

	res.Outcomes = e.execute(ctx, store, p, setState)
	res.collect()
	res.Duration = time.Since(res.StartedAt)
	return res, true
}

// runGroup checks required fields and runs a full recalculation group
func (e *Engine) runGroup(ctx context.Context, store *fields.Store, name string, required []string, setState func(State)) (*Result, error) {
	g, ok := e.groups[name]
	if !ok {
		return nil, fmt.Errorf("group %s: %w", name, ErrUnknownGroup)
	}

	setState(StateValidating)
	if missing := store.Missing(required); len(missing) > 0 {
		logger.MissingFieldsRejects.Add(1)
		return nil, newMissingFieldsError(store, missing)
	}

	res := newResult()
	res.Group = name
	res.Outcomes = e.execute(ctx, store, g.plan, setState)
	res.collect()
	res.Duration = time.Since(res.StartedAt)
	return res, nil
}

// execute starts every step of the plan. A step waits only for the steps
// it depends on, so a slow evaluator holds back its dependents and nothing
// else. Outcomes are returned in declared order.
func (e *Engine) execute(ctx context.Context, store *fields.Store, p *plan, setState func(State)) []Outcome {
	n := len(p.steps)
	outcomes := make([]Outcome, n)
	done := make([]chan struct{}, n)
	for i := range done {
		done[i] = make(chan struct{})
	}
	sem := make(chan struct{}, e.maxParallelism)

	setState(StateDispatching)

	var wg sync.WaitGroup
	for j := range p.steps {
		wg.Add(1)
		go func(j int) {
			defer wg.Done()
			defer close(done[j])

			for _, i := range p.deps[j] {
				<-done[i]
			}
			outcomes[j] = e.step(ctx, store, p.steps[j], sem)
		}(j)
	}

	setState(StateAwaiting)
	wg.Wait()

	return outcomes
}

// step checks the precondition of one computation, invokes its evaluator
// and stores the outputs. Failures never write anything.
func (e *Engine) step(ctx context.Context, store *fields.Store, c *computations.Computation, sem chan struct{}) Outcome {
	out := Outcome{Computation: c.Name}

	if missing := store.Missing(c.RequiredInputs); len(missing) > 0 {
		out.Status = StatusSkipped
		out.Missing = missing
		logger.SkippedComputations.Add(1)
		return out
	}

	sem <- struct{}{}
	start := time.Now()
	values, err := invoke(ctx, c, store.SnapshotOf(c.Inputs()))
	out.Duration = time.Since(start)
	<-sem

	if err == nil {
		out.Written, err = writeOutputs(store, c, values)
	}
	if err != nil {
		out.Status = StatusFailed
		out.Reason = err.Error()
		logger.FailedComputations.Add(1)
		logger.Warn("computation failed", "computation", c.Name, "error", err)
		return out
	}

	out.Status = StatusUpdated
	out.Outputs = values
	logger.UpdatedComputations.Add(1)
	return out
}

func invoke(ctx context.Context, c *computations.Computation, values map[string]any) (out map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("evaluator panicked: %v", r)
		}
	}()
	return c.Evaluator.Invoke(ctx, c.Name, values)
}

func writeOutputs(store *fields.Store, c *computations.Computation, values map[string]any) ([]string, error) {
	for name := range values {
		if !c.Writes(name) {
			return nil, fmt.Errorf("evaluator returned undeclared output %s", name)
		}
	}

	if err := store.SetAll(values); err != nil {
		return nil, fmt.Errorf("storing outputs: %w", err)
	}

	written := make([]string, 0, len(values))
	for _, o := range c.Outputs {
		if _, ok := values[o]; ok {
			written = append(written, o)
		}
	}
	return written, nil
}

func newResult() *Result {
	return &Result{
		PassID:    uuid.NewString(),
		StartedAt: time.Now(),
	}
}
