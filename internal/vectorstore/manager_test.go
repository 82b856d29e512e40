package vectorstore

import (
	"context"
	"testing"
)

func TestManagerCreatesTableLazily(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store)

	exists, err := mgr.TableExists(ctx, "repo1")
	if err != nil || exists {
		t.Fatalf("expected table absent, got exists=%v err=%v", exists, err)
	}

	rows := []Row{{UUID: "u1", Path: "a.ts", CacheKey: "k1", Vector: []float32{1, 2}}}
	if err := mgr.AddRows(ctx, "repo1", rows); err != nil {
		t.Fatalf("AddRows: %v", err)
	}

	exists, err = mgr.TableExists(ctx, "repo1")
	if err != nil || !exists {
		t.Fatalf("expected table created, got exists=%v err=%v", exists, err)
	}
}

func TestManagerAddRowsEmptyIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store)

	if err := mgr.AddRows(ctx, "repo1", nil); err != nil {
		t.Fatalf("AddRows(nil): %v", err)
	}
	exists, _ := mgr.TableExists(ctx, "repo1")
	if exists {
		t.Fatal("empty AddRows must not create a table")
	}
}

func TestManagerDeleteMissingTableIsNoop(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store)

	err := mgr.Delete(ctx, "missing", []Predicate{{CacheKey: "k1", Path: "a.ts"}})
	if err != nil {
		t.Fatalf("Delete on missing table should be a no-op, got %v", err)
	}
}

func TestManagerDeleteRemovesMatchingRows(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()
	mgr := NewManager(store)

	rows := []Row{
		{UUID: "u1", Path: "a.ts", CacheKey: "k1"},
		{UUID: "u2", Path: "b.ts", CacheKey: "k2"},
	}
	if err := mgr.AddRows(ctx, "repo1", rows); err != nil {
		t.Fatalf("AddRows: %v", err)
	}

	if err := mgr.Delete(ctx, "repo1", []Predicate{{CacheKey: "k1", Path: "a.ts"}}); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	table, err := mgr.Open(ctx, "repo1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	remaining, err := table.Search(ctx, nil, SearchOptions{Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Path != "b.ts" {
		t.Fatalf("expected only b.ts to remain, got %+v", remaining)
	}
}
