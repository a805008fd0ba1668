package records

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("record not found")

// Record is a linked CRM record, such as an opportunity or a project,
// that a calculator can reference.
type Record struct {
	EntityType string         `json:"entityType"`
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Address    string         `json:"address,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Label is how the record is shown in the forecast name
func (r *Record) Label() string {
	return r.Name + " - " + r.Address
}

// Lookup fetches linked records. Implementations return ErrNotFound for
// unknown ids.
type Lookup interface {
	Lookup(ctx context.Context, entityType, id string) (*Record, error)
}

// Store is a Lookup that can also save records
type Store interface {
	Lookup
	Put(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, entityType, id string) error
}

func key(entityType, id string) string {
	return entityType + "/" + id
}
