package recalc

import (
	"fmt"
	"sort"
	"strings"

	"github.com/liamcoop/recalc/computations"
)

// Binding maps a trigger field to the computations attempted, in order,
// when that field changes. An EditsOnly binding runs for changes submitted
// through OnFieldChanged and never for cascades, so its trigger -> output
// edges take no part in cycle detection.
type Binding struct {
	Trigger      string   `json:"trigger" yaml:"trigger"`
	Computations []string `json:"computations" yaml:"computations"`
	EditsOnly    bool     `json:"editsOnly,omitempty" yaml:"editsOnly,omitempty"`
}

// Group is a named full recalculation: the fields that must be present
// and the computations run, in order.
type Group struct {
	Name         string   `json:"name" yaml:"name"`
	Required     []string `json:"required" yaml:"required"`
	Computations []string `json:"computations" yaml:"computations"`
}

// plan is an ordered list of computations with, for each one, the indexes
// of the earlier computations it has to wait for.
type plan struct {
	steps     []*computations.Computation
	deps      [][]int
	editsOnly bool
}

// buildPlan resolves names and derives the ordering constraints. Step j
// waits for an earlier step i when i writes a field j reads, j writes a
// field i reads, or both write the same field. Running the plan with
// those constraints gives the same field values as running the steps one
// by one in declared order.
func buildPlan(reg *computations.Registry, names []string) (*plan, error) {
	p := &plan{
		steps: make([]*computations.Computation, 0, len(names)),
		deps:  make([][]int, len(names)),
	}

	for _, name := range names {
		c, err := reg.Resolve(name)
		if err != nil {
			return nil, err
		}
		p.steps = append(p.steps, c)
	}

	for j := range p.steps {
		for i := 0; i < j; i++ {
			if conflicts(p.steps[i], p.steps[j]) {
				p.deps[j] = append(p.deps[j], i)
			}
		}
	}

	return p, nil
}

func conflicts(earlier, later *computations.Computation) bool {
	for _, out := range earlier.Outputs {
		if later.Reads(out) || later.Writes(out) {
			return true
		}
	}
	for _, out := range later.Outputs {
		if earlier.Reads(out) {
			return true
		}
	}
	return false
}

// checkCycles walks the field graph formed by trigger -> output edges of
// the bindings cascades can reach and fails on the first cycle found.
// Uses DFS colour marking.
func checkCycles(reg *computations.Registry, bindings []Binding) error {
	edges := make(map[string][]string)
	for _, b := range bindings {
		if b.EditsOnly {
			continue
		}
		for _, name := range b.Computations {
			c, err := reg.Resolve(name)
			if err != nil {
				return err
			}
			edges[b.Trigger] = append(edges[b.Trigger], c.Outputs...)
		}
	}

	const (
		white = iota
		gray
		black
	)
	colors := make(map[string]int)
	var path []string

	var visit func(field string) []string
	visit = func(field string) []string {
		colors[field] = gray
		path = append(path, field)

		for _, next := range edges[field] {
			switch colors[next] {
			case gray:
				// cycle runs from the first occurrence of next to here
				start := 0
				for i, f := range path {
					if f == next {
						start = i
						break
					}
				}
				cycle := append([]string{}, path[start:]...)
				return append(cycle, next)
			case white:
				if cycle := visit(next); cycle != nil {
					return cycle
				}
			}
		}

		path = path[:len(path)-1]
		colors[field] = black
		return nil
	}

	triggers := make([]string, 0, len(edges))
	for t := range edges {
		triggers = append(triggers, t)
	}
	sort.Strings(triggers)

	for _, t := range triggers {
		if colors[t] != white {
			continue
		}
		if cycle := visit(t); cycle != nil {
			return fmt.Errorf("%w: %s", ErrCyclicDependency, strings.Join(cycle, " -> "))
		}
	}
	return nil
}
