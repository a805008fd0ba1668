package recalc

import (
	"slices"
	"time"
)

// Outcome records what happened to one computation during a pass
type Outcome struct {
	Computation string         `json:"computation"`
	Status      Status         `json:"status"`
	Missing     []string       `json:"missing,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Outputs     map[string]any `json:"outputs,omitempty"`
	// Written lists the output fields stored, in declared order
	Written  []string      `json:"written,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failure is a computation whose evaluator reported an error
type Failure struct {
	Computation string `json:"computation"`
	Reason      string `json:"reason"`
}

// Result is the outcome of one recalculation pass. It is what the display
// collaborator receives.
type Result struct {
	PassID    string `json:"passId"`
	SessionID string `json:"sessionId,omitempty"`
	// Trigger is the changed field; empty for full recalculations
	Trigger string `json:"trigger,omitempty"`
	// Group is set for full recalculations
	Group string `json:"group,omitempty"`

	Refreshed []string  `json:"refreshed"`
	Skipped   []string  `json:"skipped"`
	Failed    []Failure `json:"failed"`
	Outcomes  []Outcome `json:"outcomes"`

	// Cascades holds the passes scheduled for written fields that are
	// triggers themselves, in the order they ran.
	Cascades []*Result `json:"cascades,omitempty"`

	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Detach returns a copy of the pass that shares no slice with it. Cascades
// are left out: they are attached after the pass is shown, and each one is
// shown as a pass of its own.
func (r *Result) Detach() *Result {
	cp := *r
	cp.Refreshed = slices.Clone(r.Refreshed)
	cp.Skipped = slices.Clone(r.Skipped)
	cp.Failed = slices.Clone(r.Failed)
	cp.Outcomes = slices.Clone(r.Outcomes)
	cp.Cascades = nil
	return &cp
}

// IsNoop reports whether the pass touched nothing
func (r *Result) IsNoop() bool {
	return len(r.Refreshed) == 0 && len(r.Skipped) == 0 && len(r.Failed) == 0
}

// Outcome returns the outcome recorded for a computation
func (r *Result) Outcome(computation string) (Outcome, bool) {
	for _, o := range r.Outcomes {
		if o.Computation == computation {
			return o, true
		}
	}
	return Outcome{}, false
}

// AllRefreshed returns the refreshed fields of this pass and every
// cascaded pass, without duplicates.
func (r *Result) AllRefreshed() []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(*Result)
	walk = func(res *Result) {
		for _, f := range res.Refreshed {
			if !seen[f] {
				seen[f] = true
				out = append(out, f)
			}
		}
		for _, c := range res.Cascades {
			walk(c)
		}
	}
	walk(r)
	return out
}

// collect fills the summary slices from the outcomes, in declared order
func (r *Result) collect() {
	r.Refreshed = []string{}
	r.Skipped = []string{}
	r.Failed = []Failure{}

	seen := make(map[string]bool)
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusUpdated:
			for _, f := range o.Written {
				if !seen[f] {
					seen[f] = true
					r.Refreshed = append(r.Refreshed, f)
				}
			}
		case StatusSkipped:
			r.Skipped = append(r.Skipped, o.Computation)
		case StatusFailed:
			r.Failed = append(r.Failed, Failure{Computation: o.Computation, Reason: o.Reason})
		}
	}
}
