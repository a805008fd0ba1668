package calculator

import (
	"fmt"

	"github.com/liamcoop/recalc/computations"
	"github.com/liamcoop/recalc/evaluator"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/recalc"
	"github.com/liamcoop/recalc/records"
)

// Deps are the collaborators a calculator is wired to
type Deps struct {
	// Lookup resolves linked records for lookup computations
	Lookup records.Lookup
	// Remote evaluates remote computations
	Remote computations.Evaluator
	// Display receives every pass result
	Display        recalc.Display
	MaxParallelism int
}

// Calculator is a definition compiled into a ready engine
type Calculator struct {
	Definition *Definition
	Registry   *computations.Registry
	Engine     *recalc.Engine
}

// Build validates def, compiles its computations and constructs the
// engine. Configuration errors, cycles included, surface here.
func Build(def *Definition, deps Deps) (*Calculator, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}

	cel, err := evaluator.NewCEL()
	if err != nil {
		return nil, err
	}

	reg := computations.NewRegistry()
	for _, c := range def.Computations {
		ev, err := evaluatorFor(c, cel, deps)
		if err != nil {
			return nil, fmt.Errorf("computation %s: %w", c.Name, err)
		}

		err = reg.Register(&computations.Computation{
			Name:           c.Name,
			Description:    c.Description,
			RequiredInputs: c.Requires,
			OptionalInputs: c.Optional,
			Outputs:        c.OutputFields(),
			Evaluator:      ev,
		})
		if err != nil {
			return nil, err
		}
	}

	opts := []recalc.Option{}
	if deps.Display != nil {
		opts = append(opts, recalc.WithDisplay(deps.Display))
	}
	if deps.MaxParallelism > 0 {
		opts = append(opts, recalc.WithMaxParallelism(deps.MaxParallelism))
	}

	engine, err := recalc.New(reg, recalc.Config{
		Bindings:     def.Bindings,
		Groups:       def.Groups,
		DefaultGroup: def.DefaultGroup,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("calculator %s: %w", def.Name, err)
	}

	return &Calculator{
		Definition: def,
		Registry:   reg,
		Engine:     engine,
	}, nil
}

func evaluatorFor(c Computation, cel *evaluator.CEL, deps Deps) (computations.Evaluator, error) {
	switch c.Kind {
	case KindCEL:
		inputs := append(append([]string{}, c.Requires...), c.Optional...)
		if err := cel.CompileWithInputs(c.Name, inputs, c.Outputs); err != nil {
			return nil, err
		}
		return cel, nil

	case KindBuiltin:
		inputs := append(append([]string{}, c.Requires...), c.Optional...)
		return builtinEvaluator(builtins[c.Builtin], inputs, c.OutputFields()), nil

	case KindLookup:
		if deps.Lookup == nil {
			return nil, fmt.Errorf("lookup computation without a record lookup")
		}
		return records.NewLabelEvaluator(deps.Lookup, c.Lookup.EntityType, c.LinkField(), c.Outputs[0].Field), nil

	case KindRemote:
		if deps.Remote == nil {
			return nil, fmt.Errorf("remote computation without a remote evaluator")
		}
		return deps.Remote, nil
	}
	return nil, fmt.Errorf("invalid kind %q", c.Kind)
}

// NewStore creates a field store accepting exactly the declared fields
func (c *Calculator) NewStore() (*fields.Store, error) {
	return fields.NewStore(c.Definition.Fields...)
}

// Group returns a declared full recalculation group
func (c *Calculator) Group(name string) (recalc.Group, bool) {
	return c.Engine.Group(name)
}
