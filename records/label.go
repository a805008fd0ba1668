package records

import (
	"context"
	"fmt"
	"strings"

	"github.com/liamcoop/recalc/computations"
)

// LabelEvaluator resolves the record referenced by a link field and writes
// its label to output. An unset or blank link clears the label.
type LabelEvaluator struct {
	lookup     Lookup
	entityType string
	linkField  string
	output     string
}

var _ computations.Evaluator = (*LabelEvaluator)(nil)

func NewLabelEvaluator(lookup Lookup, entityType, linkField, output string) *LabelEvaluator {
	return &LabelEvaluator{
		lookup:     lookup,
		entityType: entityType,
		linkField:  linkField,
		output:     output,
	}
}

func (e *LabelEvaluator) Invoke(ctx context.Context, computation string, values map[string]any) (map[string]any, error) {
	raw, ok := values[e.linkField]
	if !ok || raw == nil {
		return map[string]any{e.output: ""}, nil
	}

	id := strings.TrimSpace(fmt.Sprint(raw))
	if id == "" {
		return map[string]any{e.output: ""}, nil
	}
	rec, err := e.lookup.Lookup(ctx, e.entityType, id)
	if err != nil {
		return nil, err
	}
	return map[string]any{e.output: rec.Label()}, nil
}
