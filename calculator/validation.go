package calculator

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/liamcoop/recalc/fields"
)

var ErrInvalidDefinition = errors.New("invalid calculator definition")

const (
	maxFields       = 500
	maxComputations = 200
)

var (
	validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	validName       = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_-]*$`)
)

// Validate checks a definition before anything is compiled. Every field a
// computation, binding or group refers to must be declared.
func Validate(def *Definition) error {
	if err := validate(def); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	return nil
}

func validate(def *Definition) error {
	if def == nil {
		return fmt.Errorf("definition is nil")
	}
	if def.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(def.Name) > 100 || !validName.MatchString(def.Name) {
		return fmt.Errorf("invalid name %q: use up to 100 letters, digits, '-' or '_'", def.Name)
	}

	if len(def.Fields) == 0 {
		return fmt.Errorf("definition must declare at least one field")
	}
	if len(def.Fields) > maxFields {
		return fmt.Errorf("definition declares %d fields, maximum allowed is %d", len(def.Fields), maxFields)
	}

	declared := make(map[string]fields.Kind, len(def.Fields))
	for _, f := range def.Fields {
		if err := validateIdentifier(f.Name); err != nil {
			return fmt.Errorf("invalid field name %q: %w", f.Name, err)
		}
		if _, exists := declared[f.Name]; exists {
			return fmt.Errorf("field %q declared twice", f.Name)
		}
		if !isValidKind(f.Kind) {
			return fmt.Errorf("field %q has invalid kind %q (must be one of: number, text, link, table)", f.Name, f.Kind)
		}
		declared[f.Name] = f.Kind
	}

	if len(def.Computations) > maxComputations {
		return fmt.Errorf("definition declares %d computations, maximum allowed is %d", len(def.Computations), maxComputations)
	}

	names := make(map[string]bool, len(def.Computations))
	for _, c := range def.Computations {
		if err := validateIdentifier(c.Name); err != nil {
			return fmt.Errorf("invalid computation name %q: %w", c.Name, err)
		}
		if names[c.Name] {
			return fmt.Errorf("computation %q declared twice", c.Name)
		}
		names[c.Name] = true

		if err := validateComputation(c, declared); err != nil {
			return fmt.Errorf("computation %q: %w", c.Name, err)
		}
	}

	for _, b := range def.Bindings {
		if _, ok := declared[b.Trigger]; !ok {
			return fmt.Errorf("binding trigger %q is not a declared field", b.Trigger)
		}
		if err := checkNames(b.Computations, names); err != nil {
			return fmt.Errorf("binding %q: %w", b.Trigger, err)
		}
	}

	groups := make(map[string]bool, len(def.Groups))
	for _, g := range def.Groups {
		if err := validateIdentifier(g.Name); err != nil {
			return fmt.Errorf("invalid group name %q: %w", g.Name, err)
		}
		groups[g.Name] = true
		for _, f := range g.Required {
			if _, ok := declared[f]; !ok {
				return fmt.Errorf("group %q requires undeclared field %q", g.Name, f)
			}
		}
		if err := checkNames(g.Computations, names); err != nil {
			return fmt.Errorf("group %q: %w", g.Name, err)
		}
	}

	if def.DefaultGroup != "" && !groups[def.DefaultGroup] {
		return fmt.Errorf("default group %q is not declared", def.DefaultGroup)
	}

	return nil
}

func validateComputation(c Computation, declared map[string]fields.Kind) error {
	if len(c.Outputs) == 0 {
		return fmt.Errorf("must declare at least one output")
	}

	for _, in := range append(append([]string{}, c.Requires...), c.Optional...) {
		if _, ok := declared[in]; !ok {
			return fmt.Errorf("input %q is not a declared field", in)
		}
	}
	for _, o := range c.Outputs {
		if _, ok := declared[o.Field]; !ok {
			return fmt.Errorf("output %q is not a declared field", o.Field)
		}
	}

	switch c.Kind {
	case KindCEL:
		for _, o := range c.Outputs {
			if strings.TrimSpace(o.Expression) == "" {
				return fmt.Errorf("output %q has no expression", o.Field)
			}
		}
	case KindBuiltin:
		b, ok := builtins[c.Builtin]
		if !ok {
			return fmt.Errorf("unknown builtin %q", c.Builtin)
		}
		if n := len(c.Requires) + len(c.Optional); n != b.inputs {
			return fmt.Errorf("builtin %q takes %d inputs, got %d", c.Builtin, b.inputs, n)
		}
		if len(c.Outputs) != b.outputs {
			return fmt.Errorf("builtin %q produces %d outputs, got %d", c.Builtin, b.outputs, len(c.Outputs))
		}
	case KindLookup:
		if c.Lookup == nil || c.Lookup.EntityType == "" {
			return fmt.Errorf("lookup computation needs an entity type")
		}
		if c.LinkField() == "" {
			return fmt.Errorf("lookup computation needs the link field as its first input")
		}
		if len(c.Outputs) != 1 {
			return fmt.Errorf("lookup computation writes exactly one output")
		}
	case KindRemote:
	default:
		return fmt.Errorf("invalid kind %q (must be one of: cel, builtin, lookup, remote)", c.Kind)
	}

	if c.Kind != KindCEL {
		for _, o := range c.Outputs {
			if o.Expression != "" {
				return fmt.Errorf("output %q: expressions are only allowed for cel computations", o.Field)
			}
		}
	}
	return nil
}

func checkNames(list []string, names map[string]bool) error {
	for _, n := range list {
		if !names[n] {
			return fmt.Errorf("unknown computation %q", n)
		}
	}
	return nil
}

// validateIdentifier validates a field, computation or group name.
// Names become CEL map keys, so reserved words are refused.
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}
	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}
	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}
	return nil
}

func isValidKind(k fields.Kind) bool {
	switch k {
	case "", fields.KindNumber, fields.KindText, fields.KindLink, fields.KindTable:
		return true
	}
	return false
}

func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":      true,
		"false":     true,
		"null":      true,
		"if":        true,
		"else":      true,
		"for":       true,
		"while":     true,
		"break":     true,
		"continue":  true,
		"return":    true,
		"var":       true,
		"let":       true,
		"const":     true,
		"function":  true,
		"in":        true,
		"as":        true,
		"import":    true,
		"package":   true,
		"namespace": true,
		"loop":      true,
		"void":      true,
	}
	return reservedKeywords[name]
}
