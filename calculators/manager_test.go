package calculators

import (
	"context"
	"errors"
	"testing"

	"github.com/liamcoop/recalc/calculator"
	"github.com/liamcoop/recalc/records"
)

func newTestManager() (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	return NewManager(store, calculator.Deps{Lookup: records.NewMemoryStore()}), store
}

func TestManagerCreateAndGet(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	e, err := m.Create(ctx, testDefinition("pm"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if e.Stored.ID == "" {
		t.Fatal("Create() should assign an id")
	}

	byID, err := m.Get(e.Stored.ID)
	if err != nil || byID != e {
		t.Fatalf("Get(id) = %v, %v", byID, err)
	}
	byName, err := m.Get("pm")
	if err != nil || byName != e {
		t.Fatalf("Get(name) = %v, %v", byName, err)
	}

	if _, err := m.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestManagerCreateRejectsInvalidDefinition(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	def := testDefinition("broken")
	def.Bindings[0].Computations = []string{"missing"}
	if _, err := m.Create(ctx, def); !errors.Is(err, calculator.ErrInvalidDefinition) {
		t.Fatalf("Create() error = %v, want ErrInvalidDefinition", err)
	}

	active, _ := store.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("invalid definition was persisted: %v", active)
	}
}

func TestManagerUpdateSwapsEngine(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	e, err := m.Create(ctx, testDefinition("pm"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	store, _ := e.Calculator.NewStore()
	old := e.Calculator.Engine.NewSession("old", store)

	def := testDefinition("pm")
	def.Computations[0].Outputs[0].Expression = "doc.renovation * 0.20"
	updated, err := m.Update(ctx, e.Stored.ID, def)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	got, _ := m.Get(e.Stored.ID)
	if got != updated || got.Calculator == e.Calculator {
		t.Fatal("Update() should swap in a new calculator")
	}

	newStore, _ := updated.Calculator.NewStore()
	current := updated.Calculator.Engine.NewSession("new", newStore)

	if _, err := old.OnFieldChanged(ctx, "renovation", 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := current.OnFieldChanged(ctx, "renovation", 1000); err != nil {
		t.Fatal(err)
	}
	if v, _ := old.Store().Get("project_management"); v != 100.0 {
		t.Errorf("old session project_management = %v, want 100", v)
	}
	if v, _ := current.Store().Get("project_management"); v != 200.0 {
		t.Errorf("new session project_management = %v, want 200", v)
	}
}

func TestManagerUpdateRejectsBadDefinition(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	e, err := m.Create(ctx, testDefinition("pm"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	def := testDefinition("pm")
	def.Computations[0].Outputs[0].Expression = "doc.renovation *"
	if _, err := m.Update(ctx, e.Stored.ID, def); err == nil {
		t.Fatal("Update() accepted an expression that does not compile")
	}

	got, _ := m.Get(e.Stored.ID)
	if got != e {
		t.Error("a failed update must keep the current calculator")
	}
}

func TestManagerDeleteAndList(t *testing.T) {
	m, _ := newTestManager()
	ctx := context.Background()

	b, err := m.Create(ctx, testDefinition("b-calc"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Create(ctx, testDefinition("a-calc")); err != nil {
		t.Fatal(err)
	}

	list := m.List()
	if len(list) != 2 || list[0].Stored.Name != "a-calc" || list[1].Stored.Name != "b-calc" {
		t.Fatalf("List() = %v", list)
	}

	if err := m.Delete(ctx, b.Stored.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := m.Get(b.Stored.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v", err)
	}
	if err := m.Delete(ctx, b.Stored.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v", err)
	}
}

func TestManagerEnsureDefaultAndLoadAll(t *testing.T) {
	m, store := newTestManager()
	ctx := context.Background()

	e, err := m.EnsureDefault(ctx)
	if err != nil {
		t.Fatalf("EnsureDefault() failed: %v", err)
	}
	again, err := m.EnsureDefault(ctx)
	if err != nil || again != e {
		t.Fatalf("second EnsureDefault() = %v, %v", again, err)
	}

	reloaded := NewManager(store, calculator.Deps{Lookup: records.NewMemoryStore()})
	if err := reloaded.LoadAll(ctx); err != nil {
		t.Fatalf("LoadAll() failed: %v", err)
	}
	got, err := reloaded.Get(calculator.DefaultName)
	if err != nil {
		t.Fatalf("Get(default) after LoadAll failed: %v", err)
	}
	if got.Stored.ID != e.Stored.ID {
		t.Errorf("reloaded id = %s, want %s", got.Stored.ID, e.Stored.ID)
	}
}
