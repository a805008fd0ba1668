package fields

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOpenStoreAcceptsAnyName(t *testing.T) {
	store, err := NewStore()
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	if err := store.Set("purchase_price", 300000); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	v, ok := store.Get("purchase_price")
	if !ok {
		t.Fatal("purchase_price should be set")
	}
	if v != 300000.0 {
		t.Errorf("ints should be stored as float64, got %T(%v)", v, v)
	}

	if _, ok := store.Get("sdlt"); ok {
		t.Error("sdlt should be unset")
	}
}

func TestSchemaStoreRejectsUnknownField(t *testing.T) {
	store, err := NewStore(Definition{Name: "purchase_price", Group: "uk investor"})
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}

	err = store.Set("asking_price", 1)
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("Set(unknown) error = %v, want ErrUnknownField", err)
	}
	if store.Has("asking_price") {
		t.Error("Has() should be false for an undeclared field")
	}
}

func TestNewStoreRejectsDuplicateDefinitions(t *testing.T) {
	_, err := NewStore(Definition{Name: "rooms"}, Definition{Name: "rooms"})
	if !errors.Is(err, ErrDuplicateField) {
		t.Errorf("NewStore() error = %v, want ErrDuplicateField", err)
	}
}

func TestIsPresent(t *testing.T) {
	store, _ := NewStore()

	testCases := []struct {
		name  string
		value any
		want  bool
	}{
		{"positive number", 12.5, true},
		{"zero number", 0, false},
		{"negative number", -10, true},
		{"text", "Resi", true},
		{"blank text", "   ", false},
		{"true", true, true},
		{"false", false, false},
		{"empty list", []any{}, false},
		{"list", []any{1}, true},
		{"empty map", map[string]any{}, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if err := store.Set("f", tc.value); err != nil {
				t.Fatalf("Set() failed: %v", err)
			}
			if got := store.IsPresent("f"); got != tc.want {
				t.Errorf("IsPresent() with %v = %v, want %v", tc.value, got, tc.want)
			}
		})
	}

	store.Unset("f")
	if store.IsPresent("f") {
		t.Error("unset field must not be present")
	}
}

func TestNumberFieldsParseCurrency(t *testing.T) {
	store, _ := NewStore(
		Definition{Name: "purchase_price", Kind: KindNumber},
		Definition{Name: "sdlt", Kind: KindText},
	)

	if err := store.Set("purchase_price", "£1,250,000.50"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	v, _ := store.Get("purchase_price")
	if v != 1250000.50 {
		t.Errorf("purchase_price = %v, want 1250000.5", v)
	}

	if err := store.Set("sdlt", "Resi"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	v, _ = store.Get("sdlt")
	if v != "Resi" {
		t.Errorf("text fields must be kept as-is, got %v", v)
	}

	err := store.Set("purchase_price", "not a price")
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Set(garbage) error = %v, want ErrInvalidValue", err)
	}

	if err := store.Set("purchase_price", ""); err != nil {
		t.Fatalf("Set(\"\") failed: %v", err)
	}
	if _, ok := store.Get("purchase_price"); ok {
		t.Error("blank number should unset the field")
	}

	if err := store.Set("purchase_price", decimal.RequireFromString("99.95")); err != nil {
		t.Fatalf("Set(decimal) failed: %v", err)
	}
	v, _ = store.Get("purchase_price")
	if v != 99.95 {
		t.Errorf("decimal should be stored as float64, got %v", v)
	}
}

func TestSetAllIsAtomic(t *testing.T) {
	store, _ := NewStore(
		Definition{Name: "a"},
		Definition{Name: "b"},
	)

	err := store.SetAll(map[string]any{"a": 1, "c": 2})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("SetAll() error = %v, want ErrUnknownField", err)
	}
	if _, ok := store.Get("a"); ok {
		t.Error("SetAll() must not write anything when one value is rejected")
	}

	if err := store.SetAll(map[string]any{"a": 1, "b": 2}); err != nil {
		t.Fatalf("SetAll() failed: %v", err)
	}
	if !store.IsPresent("a") || !store.IsPresent("b") {
		t.Error("both fields should be present")
	}
}

func TestMissingKeepsOrder(t *testing.T) {
	store, _ := NewStore()
	_ = store.Set("b", 1)

	got := store.Missing([]string{"c", "b", "a"})
	if len(got) != 2 || got[0] != "c" || got[1] != "a" {
		t.Errorf("Missing() = %v, want [c a]", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	store, _ := NewStore()
	_ = store.Set("rooms", 6)

	snap := store.Snapshot()
	snap["rooms"] = 1.0

	v, _ := store.Get("rooms")
	if v != 6.0 {
		t.Errorf("modifying a snapshot changed the store: rooms = %v", v)
	}
}

func TestSnapshotOf(t *testing.T) {
	store, _ := NewStore()
	_ = store.Set("rooms", 6)
	_ = store.Set("rent", 3000)

	snap := store.SnapshotOf([]string{"rooms", "lease"})
	if len(snap) != 1 || snap["rooms"] != 6.0 {
		t.Errorf("SnapshotOf() = %v, want only rooms", snap)
	}
}

func TestFieldsOrder(t *testing.T) {
	store, _ := NewStore(
		Definition{Name: "purchase_price", Group: "uk investor"},
		Definition{Name: "asking_price", Group: "uk investor"},
	)
	_ = store.Set("asking_price", 350000)

	fs := store.Fields()
	if len(fs) != 2 {
		t.Fatalf("Fields() returned %d fields, want 2", len(fs))
	}
	if fs[0].Name != "purchase_price" || fs[0].Set {
		t.Errorf("first field = %+v, want unset purchase_price", fs[0])
	}
	if fs[1].Label != "Asking Price" || fs[1].Value != 350000.0 {
		t.Errorf("second field = %+v", fs[1])
	}

	open, _ := NewStore()
	_ = open.Set("z", 1)
	_ = open.Set("a", 1)
	fs = open.Fields()
	if fs[0].Name != "a" || fs[1].Name != "z" {
		t.Errorf("open store fields should be sorted, got %v, %v", fs[0].Name, fs[1].Name)
	}
}

func TestLabel(t *testing.T) {
	testCases := map[string]string{
		"main_asking_price":               "Main Asking Price",
		"main_rentm_rm_rate_reverse_calc": "Main Rentm Rm Rate Reverse Calc",
		"sdlt":                            "Sdlt",
		"int_sdlt_amount":                 "Int Sdlt Amount",
		"élan_value":                      "Élan Value",
		"ñame__ünit":                      "Ñame Ünit",
	}

	for in, want := range testCases {
		if got := Label(in); got != want {
			t.Errorf("Label(%q) = %q, want %q", in, got, want)
		}
	}
}
