package calculators

import (
	"context"
	"errors"
	"testing"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/evaluator"
	"github.com/liamcoop/recalc/fields"
	"github.com/liamcoop/recalc/recalc"
)

func testDefinition(name string) *calculator.Definition {
	return &calculator.Definition{
		Name:   name,
		Fields: []fields.Definition{{Name: "renovation"}, {Name: "project_management"}},
		Computations: []calculator.Computation{{
			Name:     "calculate_project_management",
			Kind:     calculator.KindCEL,
			Requires: []string{"renovation"},
			Outputs:  []evaluator.Output{{Field: "project_management", Expression: "doc.renovation * 0.10"}},
		}},
		Bindings: []recalc.Binding{{Trigger: "renovation", Computations: []string{"calculate_project_management"}}},
	}
}

func TestMemoryStoreImplementsDefinitionStore(t *testing.T) {
	var _ DefinitionStore = (*MemoryStore)(nil)
	var _ DefinitionStore = (*PostgresStore)(nil)
}

func TestMemoryStoreAddGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	c := &Stored{ID: "c1", Name: "pm", Definition: testDefinition("pm"), Active: true}
	if err := store.Add(ctx, c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	if c.CreatedAt.IsZero() || !c.CreatedAt.Equal(c.UpdatedAt) {
		t.Errorf("timestamps not set: %v / %v", c.CreatedAt, c.UpdatedAt)
	}

	got, err := store.Get(ctx, "c1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != "pm" || got.Definition.Name != "pm" {
		t.Errorf("Get() = %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreUniqueness(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Add(ctx, &Stored{ID: "c1", Name: "pm", Active: true}); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}

	tests := []struct {
		name string
		c    *Stored
	}{
		{"duplicate id", &Stored{ID: "c1", Name: "other"}},
		{"duplicate name", &Stored{ID: "c2", Name: "pm"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := store.Add(ctx, tt.c); !errors.Is(err, ErrExists) {
				t.Errorf("Add() error = %v, want ErrExists", err)
			}
		})
	}
}

func TestMemoryStoreUpdatePreservesCreatedAt(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	c := &Stored{ID: "c1", Name: "pm", Active: true}
	if err := store.Add(ctx, c); err != nil {
		t.Fatalf("Add() failed: %v", err)
	}
	created := c.CreatedAt

	update := &Stored{ID: "c1", Name: "pm-v2", Active: true}
	if err := store.Update(ctx, update); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if !update.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", update.CreatedAt, created)
	}
	if update.UpdatedAt.Before(created) {
		t.Errorf("UpdatedAt %v before CreatedAt %v", update.UpdatedAt, created)
	}

	if err := store.Update(ctx, &Stored{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStoreListActiveAndDelete(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	for _, c := range []*Stored{
		{ID: "a", Name: "a", Active: true},
		{ID: "b", Name: "b", Active: false},
		{ID: "c", Name: "c", Active: true},
	} {
		if err := store.Add(ctx, c); err != nil {
			t.Fatalf("Add(%s) failed: %v", c.ID, err)
		}
	}

	active, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("ListActive() failed: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("ListActive() returned %d, want 2", len(active))
	}

	if err := store.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
	active, _ = store.ListActive(ctx)
	if len(active) != 1 || active[0].ID != "c" {
		t.Errorf("ListActive() after delete = %v", active)
	}
}
