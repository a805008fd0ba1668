package recalc

import (
	"errors"
	"strings"

	"github.com/liamcoop/recalc/computations"
	"github.com/liamcoop/recalc/fields"
)

var (
	ErrDuplicateName      = computations.ErrDuplicateName
	ErrUnknownComputation = computations.ErrUnknownComputation
	ErrCyclicDependency   = computations.ErrCyclicDependency

	ErrUnknownGroup = errors.New("unknown recalculation group")
	ErrUnknownField = fields.ErrUnknownField
)

// MissingFieldsError aborts a full recalculation before any computation runs.
// Fields holds the raw names, Labels the human-readable ones in the same order.
type MissingFieldsError struct {
	Fields []string
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "Please fill these required fields first: " + strings.Join(e.Labels, ", ")
}

func newMissingFieldsError(store *fields.Store, missing []string) *MissingFieldsError {
	labels := make([]string, len(missing))
	for i, name := range missing {
		if def, ok := store.Definition(name); ok && def.Label != "" {
			labels[i] = def.Label
			continue
		}
		labels[i] = fields.Label(name)
	}
	return &MissingFieldsError{Fields: missing, Labels: labels}
}
