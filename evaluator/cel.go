package evaluator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/operators"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"
)

var (
	ErrNotCompiled = errors.New("computation is not compiled")
	// ErrUndeclaredInput is returned when an expression reads a field the
	// computation does not declare as an input
	ErrUndeclaredInput = errors.New("expression reads an undeclared input")
)

// Output is one field produced by a CEL expression. The expression sees
// the record as the map variable doc, including outputs computed before it
// in the same computation.
type Output struct {
	Field      string `json:"field" yaml:"field"`
	Expression string `json:"expr,omitempty" yaml:"expr,omitempty"`
}

type compiled struct {
	field string
	prog  cel.Program
}

// CEL evaluates computations declared as expressions over the record.
// Safe for concurrent use.
type CEL struct {
	env      *cel.Env
	programs map[string][]compiled
	mu       sync.RWMutex
}

// NewEnv builds the environment formulas are compiled against: the record
// as doc, optional field access, the math and strings extensions and
// pow(double, double).
func NewEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc", cel.MapType(cel.StringType, cel.DynType)),
		cel.OptionalTypes(),
		ext.Math(),
		ext.Strings(),
		cel.Function("pow",
			cel.Overload("pow_double_double",
				[]*cel.Type{cel.DoubleType, cel.DoubleType},
				cel.DoubleType,
				cel.BinaryBinding(func(base, exp ref.Val) ref.Val {
					b, ok1 := base.(types.Double)
					e, ok2 := exp.(types.Double)
					if !ok1 || !ok2 {
						return types.NewErr("pow: expected doubles")
					}
					return types.Double(math.Pow(float64(b), float64(e)))
				}),
			),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewCEL creates an evaluator with the default environment
func NewCEL() (*CEL, error) {
	env, err := NewEnv()
	if err != nil {
		return nil, err
	}
	return NewCELWithEnv(env), nil
}

// NewCELWithEnv creates an evaluator with a custom environment
func NewCELWithEnv(env *cel.Env) *CEL {
	return &CEL{
		env:      env,
		programs: make(map[string][]compiled),
	}
}

// Compile compiles the outputs of a computation, replacing any previous
// compilation. Nothing is stored when one expression fails.
func (c *CEL) Compile(computation string, outputs []Output) error {
	return c.compile(computation, nil, outputs)
}

// CompileWithInputs is Compile for a computation that may only read
// inputs and the outputs declared before the expression being compiled.
func (c *CEL) CompileWithInputs(computation string, inputs []string, outputs []Output) error {
	allowed := make(map[string]bool, len(inputs)+len(outputs))
	for _, in := range inputs {
		allowed[in] = true
	}
	return c.compile(computation, allowed, outputs)
}

func (c *CEL) compile(computation string, allowed map[string]bool, outputs []Output) error {
	progs := make([]compiled, 0, len(outputs))
	for _, o := range outputs {
		checked, issues := c.env.Compile(o.Expression)
		if issues != nil && issues.Err() != nil {
			return fmt.Errorf("%s.%s: compile error: %w", computation, o.Field, issues.Err())
		}

		if allowed != nil {
			refs, err := References(checked)
			if err != nil {
				return fmt.Errorf("%s.%s: %w", computation, o.Field, err)
			}
			for _, f := range refs {
				if !allowed[f] {
					return fmt.Errorf("%s.%s: %w: %s", computation, o.Field, ErrUndeclaredInput, f)
				}
			}
			allowed[o.Field] = true
		}

		// Cost limit keeps a runaway formula from stalling a pass
		prog, err := c.env.Program(checked,
			cel.CostLimit(1000000),
			cel.InterruptCheckFrequency(100),
		)
		if err != nil {
			return fmt.Errorf("%s.%s: program creation error: %w", computation, o.Field, err)
		}
		progs = append(progs, compiled{field: o.Field, prog: prog})
	}

	c.mu.Lock()
	c.programs[computation] = progs
	c.mu.Unlock()
	return nil
}

// References lists the fields an expression reads from doc, in order of
// first appearance. doc must be accessed by a constant field name:
// doc.f, doc.?f, has(doc.f), doc["f"] or doc[?"f"].
func References(checked *cel.Ast) ([]string, error) {
	var refs []string
	seen := make(map[string]bool)

	idents := ast.MatchDescendants(ast.NavigateAST(checked.NativeRep()), ast.KindMatcher(ast.IdentKind))
	for _, id := range idents {
		if id.AsIdent() != "doc" {
			continue
		}
		field, ok := accessedField(id)
		if !ok {
			return nil, errors.New("doc may only be accessed by a constant field name")
		}
		if !seen[field] {
			seen[field] = true
			refs = append(refs, field)
		}
	}
	return refs, nil
}

func accessedField(doc ast.NavigableExpr) (string, bool) {
	parent, ok := doc.Parent()
	if !ok {
		return "", false
	}

	switch parent.Kind() {
	case ast.SelectKind:
		return parent.AsSelect().FieldName(), true

	case ast.CallKind:
		call := parent.AsCall()
		switch call.FunctionName() {
		case operators.Index, operators.OptIndex, operators.OptSelect:
		default:
			return "", false
		}
		args := call.Args()
		if len(args) != 2 || args[0].ID() != doc.ID() || args[1].Kind() != ast.LiteralKind {
			return "", false
		}
		name, ok := args[1].AsLiteral().(types.String)
		return string(name), ok
	}
	return "", false
}

// Invoke evaluates every output of computation in declaration order
func (c *CEL) Invoke(ctx context.Context, computation string, values map[string]any) (map[string]any, error) {
	c.mu.RLock()
	progs, ok := c.programs[computation]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s: %w", computation, ErrNotCompiled)
	}

	doc := make(map[string]any, len(values)+len(progs))
	for k, v := range values {
		doc[k] = v
	}

	out := make(map[string]any, len(progs))
	for _, p := range progs {
		val, _, err := p.prog.ContextEval(ctx, map[string]any{"doc": doc})
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.field, err)
		}
		v, err := native(val)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p.field, err)
		}
		if v == nil {
			delete(doc, p.field)
		} else {
			doc[p.field] = v
		}
		out[p.field] = v
	}
	return out, nil
}

// native converts a CEL value to what the field store holds: numbers
// become float64, null unsets the field.
func native(val ref.Val) (any, error) {
	switch v := val.(type) {
	case types.Null:
		return nil, nil
	case types.Double:
		return float64(v), nil
	case types.Int:
		return float64(v), nil
	case types.Uint:
		return float64(v), nil
	case types.String:
		return string(v), nil
	case types.Bool:
		return bool(v), nil
	case *types.Err:
		return nil, v
	case *types.Optional:
		return nil, errors.New("optional result must be unwrapped")
	}
	return val.Value(), nil
}
