package recalc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/internal/logger"
)

type jobKind int

const (
	jobChange jobKind = iota
	jobCascade
	jobGroup
)

// tracker follows one submitted request through its cascades. Only the
// drain goroutine touches it until done is closed.
type tracker struct {
	pending int
	root    *Result
	err     error
	done    chan struct{}
}

type job struct {
	kind     jobKind
	field    string
	value    any
	group    string
	required []string

	// parent is the pass whose writes scheduled this cascade
	parent *Result
	track  *tracker
}

// Session serializes recalculation passes over one field store. Requests
// are queued FIFO and run by a drain goroutine the session starts when the
// queue goes from idle to busy. Callers only wait for their own request.
type Session struct {
	id     string
	engine *Engine
	store  *fields.Store
	state  atomic.Int32

	mu       sync.Mutex
	queue    []*job
	draining bool
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Store() *fields.Store {
	return s.store
}

func (s *Session) Engine() *Engine {
	return s.engine
}

// State returns the phase of the pass currently running
func (s *Session) State() State {
	return State(s.state.Load())
}

func (s *Session) setState(st State) {
	s.state.Store(int32(st))
}

// OnFieldChanged stores value into field and runs every computation bound
// to it. Fields written by the pass that are triggers themselves are
// queued as cascaded passes, attached to the returned result once they
// have run. A field without a binding gives an empty result.
//
// Cancelling ctx stops the wait, not the pass.
func (s *Session) OnFieldChanged(ctx context.Context, field string, value any) (*Result, error) {
	if !s.store.Has(field) {
		return nil, fmt.Errorf("field %s: %w", field, ErrUnknownField)
	}
	return s.submit(ctx, &job{kind: jobChange, field: field, value: value})
}

// RunAll runs the default group after checking that every field in
// required is present. Nothing is invoked when one is missing; the error
// is a *MissingFieldsError naming exactly those fields.
func (s *Session) RunAll(ctx context.Context, required []string) (*Result, error) {
	if s.engine.defaultGroup == "" {
		return nil, fmt.Errorf("no default group: %w", ErrUnknownGroup)
	}
	return s.submit(ctx, &job{kind: jobGroup, group: s.engine.defaultGroup, required: required})
}

// RunGroup runs a named group with the required fields it was declared with
func (s *Session) RunGroup(ctx context.Context, name string) (*Result, error) {
	g, ok := s.engine.Group(name)
	if !ok {
		return nil, fmt.Errorf("group %s: %w", name, ErrUnknownGroup)
	}
	return s.submit(ctx, &job{kind: jobGroup, group: name, required: g.Required})
}

func (s *Session) submit(ctx context.Context, j *job) (*Result, error) {
	j.track = &tracker{pending: 1, done: make(chan struct{})}

	s.mu.Lock()
	s.queue = append(s.queue, j)
	drain := !s.draining
	s.draining = true
	s.mu.Unlock()

	if drain {
		go s.drain(context.WithoutCancel(ctx))
	}

	select {
	case <-j.track.done:
		return j.track.root, j.track.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) drain(ctx context.Context) {
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.draining = false
			s.mu.Unlock()
			return
		}
		j := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		s.process(ctx, j)
	}
}

func (s *Session) process(ctx context.Context, j *job) {
	res, err := s.run(ctx, j)
	// back to Idle before the caller can be released
	s.setState(StateIdle)
	if err != nil {
		j.track.err = err
		s.complete(j)
		return
	}

	res.SessionID = s.id
	if j.parent == nil {
		j.track.root = res
	} else {
		j.parent.Cascades = append(j.parent.Cascades, res)
	}

	if j.kind != jobGroup {
		s.enqueueCascades(j, res)
	}

	s.complete(j)
}

func (s *Session) run(ctx context.Context, j *job) (*Result, error) {
	switch j.kind {
	case jobGroup:
		res, err := s.engine.runGroup(ctx, s.store, j.group, j.required, s.setState)
		if err != nil {
			return nil, err
		}
		s.finish(ctx, res, false)
		return res, nil

	case jobChange:
		s.setState(StateValidating)
		if err := s.store.Set(j.field, j.value); err != nil {
			return nil, err
		}
	}

	res, bound := s.engine.runTrigger(ctx, s.store, j.field, s.setState)
	if bound {
		s.finish(ctx, res, j.kind == jobCascade)
	}
	return res, nil
}

// finish hands a completed pass to the display and records it
func (s *Session) finish(ctx context.Context, res *Result, cascaded bool) {
	res.SessionID = s.id
	logger.TotalPasses.Add(1)
	if cascaded {
		logger.CascadedPasses.Add(1)
	}

	s.setState(StateRefreshing)
	if s.engine.display != nil {
		s.engine.display.Refresh(ctx, res)
	}

	logger.Debug("recalculation pass",
		"session", s.id,
		"pass", res.PassID,
		"trigger", res.Trigger,
		"group", res.Group,
		"refreshed", len(res.Refreshed),
		"skipped", len(res.Skipped),
		"failed", len(res.Failed),
		"duration", res.Duration)
}

// enqueueCascades schedules one pass per refreshed field that is itself a
// trigger of a cascading binding, in the order the fields were written.
func (s *Session) enqueueCascades(j *job, res *Result) {
	var next []*job
	for _, f := range res.Refreshed {
		if !s.engine.Cascades(f) {
			continue
		}
		next = append(next, &job{kind: jobCascade, field: f, parent: res, track: j.track})
	}
	if len(next) == 0 {
		return
	}

	j.track.pending += len(next)
	s.mu.Lock()
	s.queue = append(s.queue, next...)
	s.mu.Unlock()
}

func (s *Session) complete(j *job) {
	j.track.pending--
	if j.track.pending == 0 {
		close(j.track.done)
	}
}
