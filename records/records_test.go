package records

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if _, err := store.Lookup(ctx, "opportunity", "OPP-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := &Record{EntityType: "opportunity", ID: "OPP-1", Name: "OPP-1", Address: "12 High Street"}
	if err := store.Put(ctx, rec); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if rec.UpdatedAt.IsZero() {
		t.Error("Put() should stamp UpdatedAt")
	}

	got, err := store.Lookup(ctx, "opportunity", "OPP-1")
	if err != nil {
		t.Fatalf("Lookup() failed: %v", err)
	}
	if got.Address != "12 High Street" {
		t.Errorf("unexpected record %+v", got)
	}

	got.Name = "changed"
	again, _ := store.Lookup(ctx, "opportunity", "OPP-1")
	if again.Name != "OPP-1" {
		t.Error("Lookup() should return a copy")
	}

	if _, err := store.Lookup(ctx, "project", "OPP-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("entity types should not share ids, got %v", err)
	}

	if err := store.Delete(ctx, "opportunity", "OPP-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if err := store.Delete(ctx, "opportunity", "OPP-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() should fail with ErrNotFound, got %v", err)
	}

	if err := store.Put(ctx, &Record{ID: "x"}); err == nil {
		t.Error("Put() without entity type should fail")
	}
}

func TestRecordLabel(t *testing.T) {
	tests := []struct {
		rec  Record
		want string
	}{
		{Record{Name: "OPP-0001", Address: "1 Station Road"}, "OPP-0001 - 1 Station Road"},
		{Record{Name: "PROJ-7"}, "PROJ-7 - "},
	}
	for _, tt := range tests {
		if got := tt.rec.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

// countingStore counts lookups reaching the backing store
type countingStore struct {
	*MemoryStore
	lookups int
}

func (s *countingStore) Lookup(ctx context.Context, entityType, id string) (*Record, error) {
	s.lookups++
	return s.MemoryStore.Lookup(ctx, entityType, id)
}

func TestCachedStore(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: NewMemoryStore()}
	backing.Put(ctx, &Record{EntityType: "project", ID: "P1", Name: "Mill Lane"})

	cached := NewCachedStore(backing, NewInMemoryCache(CacheConfig{}))

	for i := 0; i < 3; i++ {
		if _, err := cached.Lookup(ctx, "project", "P1"); err != nil {
			t.Fatalf("Lookup() failed: %v", err)
		}
	}
	if backing.lookups != 1 {
		t.Errorf("expected 1 backing lookup, got %d", backing.lookups)
	}

	if err := cached.Put(ctx, &Record{EntityType: "project", ID: "P1", Name: "Mill Lane North"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	got, _ := cached.Lookup(ctx, "project", "P1")
	if got.Name != "Mill Lane North" {
		t.Errorf("Put() should invalidate the cached copy, got %q", got.Name)
	}
	if backing.lookups != 2 {
		t.Errorf("expected 2 backing lookups, got %d", backing.lookups)
	}

	if _, err := cached.Lookup(ctx, "project", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("misses should surface ErrNotFound, got %v", err)
	}
}

func TestInMemoryCacheTTL(t *testing.T) {
	cache := NewInMemoryCache(CacheConfig{TTL: 20 * time.Millisecond})
	cache.Set(&Record{EntityType: "opportunity", ID: "O1", Name: "a"})

	if cache.Get("opportunity", "O1") == nil {
		t.Fatal("expected cache hit")
	}

	time.Sleep(40 * time.Millisecond)
	if cache.Get("opportunity", "O1") != nil {
		t.Error("expected entry to expire")
	}

	cache.Set(&Record{EntityType: "opportunity", ID: "O2", Name: "b"})
	cache.Purge()
	if cache.Get("opportunity", "O2") != nil {
		t.Error("Purge() should drop every entry")
	}
}

func TestLabelEvaluator(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.Put(ctx, &Record{EntityType: "opportunity", ID: "OPP-9", Name: "OPP-9", Address: "4 Quay Street"})

	ev := NewLabelEvaluator(store, "opportunity", "opportunity", "forecast_name")

	out, err := ev.Invoke(ctx, "lookup_opportunity_name", map[string]any{"opportunity": "OPP-9"})
	if err != nil {
		t.Fatalf("Invoke() failed: %v", err)
	}
	if out["forecast_name"] != "OPP-9 - 4 Quay Street" {
		t.Errorf("unexpected label %v", out["forecast_name"])
	}

	if _, err := ev.Invoke(ctx, "lookup_opportunity_name", map[string]any{"opportunity": "nope"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	for _, values := range []map[string]any{{}, {"opportunity": "  "}} {
		out, err := ev.Invoke(ctx, "lookup_opportunity_name", values)
		if err != nil {
			t.Fatalf("Invoke(%v) failed: %v", values, err)
		}
		if label, ok := out["forecast_name"]; !ok || label != "" {
			t.Errorf("Invoke(%v) = %v, want the label cleared", values, out)
		}
	}
}
