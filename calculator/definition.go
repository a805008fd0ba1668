package calculator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/liamcoop/recalc/evaluator"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/recalc"
)

// Kind selects how a computation body is evaluated
type Kind string

const (
	KindCEL     Kind = "cel"
	KindBuiltin Kind = "builtin"
	KindLookup  Kind = "lookup"
	KindRemote  Kind = "remote"
)

// LookupSpec configures a lookup computation. The first input holds the
// linked record id; the single output receives its label. Declaring the
// link field optional lets the computation clear the label when the link
// is emptied.
type LookupSpec struct {
	EntityType string `json:"entityType" yaml:"entityType"`
}

// Computation declares one derived-field computation
type Computation struct {
	Name        string             `json:"name" yaml:"name"`
	Description string             `json:"description,omitempty" yaml:"description,omitempty"`
	Kind        Kind               `json:"kind" yaml:"kind"`
	Requires    []string           `json:"requires" yaml:"requires"`
	Optional    []string           `json:"optional,omitempty" yaml:"optional,omitempty"`
	Outputs     []evaluator.Output `json:"outputs" yaml:"outputs"`
	Builtin     string             `json:"builtin,omitempty" yaml:"builtin,omitempty"`
	Lookup      *LookupSpec        `json:"lookup,omitempty" yaml:"lookup,omitempty"`
}

// OutputFields returns the names of the output fields in order
func (c Computation) OutputFields() []string {
	out := make([]string, len(c.Outputs))
	for i, o := range c.Outputs {
		out[i] = o.Field
	}
	return out
}

// LinkField is the input a lookup computation resolves: the first required
// input, or the first optional one when nothing is required
func (c Computation) LinkField() string {
	if len(c.Requires) > 0 {
		return c.Requires[0]
	}
	if len(c.Optional) > 0 {
		return c.Optional[0]
	}
	return ""
}

// Definition is the declarative description of a calculator: its fields,
// computations, trigger bindings and full recalculation groups.
type Definition struct {
	Name         string              `json:"name" yaml:"name"`
	Description  string              `json:"description,omitempty" yaml:"description,omitempty"`
	DefaultGroup string              `json:"defaultGroup,omitempty" yaml:"defaultGroup,omitempty"`
	Fields       []fields.Definition `json:"fields" yaml:"fields"`
	Computations []Computation       `json:"computations" yaml:"computations"`
	Bindings     []recalc.Binding    `json:"bindings" yaml:"bindings"`
	Groups       []recalc.Group      `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// ParseYAML decodes a definition, rejecting unknown keys
func ParseYAML(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("invalid calculator definition: %w", err)
	}
	return &def, nil
}

// ParseJSON decodes a definition, rejecting unknown keys
func ParseJSON(data []byte) (*Definition, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("invalid calculator definition: %w", err)
	}
	return &def, nil
}

// LoadFile reads a definition from a .yaml, .yml or .json file
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read calculator definition: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return ParseJSON(data)
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return nil, fmt.Errorf("unsupported calculator definition format %q", filepath.Ext(path))
	}
}
