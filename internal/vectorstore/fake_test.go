package vectorstore

import (
	"context"
	"sort"
)

// fakeStore is an in-memory Store used by this package's tests. Other
// packages' tests define their own doubles.
type fakeStore struct {
	tables map[string]*fakeTable
}

func newFakeStore() *fakeStore {
	return &fakeStore{tables: make(map[string]*fakeTable)}
}

func (s *fakeStore) TableNames(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(s.tables))
	for n := range s.tables {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (s *fakeStore) OpenTable(ctx context.Context, name string) (Table, error) {
	t, ok := s.tables[name]
	if !ok {
		return nil, ErrTableNotFound
	}
	return t, nil
}

func (s *fakeStore) CreateTable(ctx context.Context, name string, initial []Row) (Table, error) {
	if len(initial) == 0 {
		return nil, ErrTableNotFound
	}
	t, ok := s.tables[name]
	if !ok {
		t = &fakeTable{}
		s.tables[name] = t
	}
	if err := t.Add(ctx, initial); err != nil {
		return nil, err
	}
	return t, nil
}

type fakeTable struct {
	rows []Row
}

func (t *fakeTable) Add(ctx context.Context, rows []Row) error {
	t.rows = append(t.rows, rows...)
	return nil
}

func (t *fakeTable) Delete(ctx context.Context, predicates []Predicate) error {
	for _, p := range predicates {
		kept := t.rows[:0]
		for _, r := range t.rows {
			if r.CacheKey == p.CacheKey && r.Path == p.Path {
				continue
			}
			kept = append(kept, r)
		}
		t.rows = kept
	}
	return nil
}

func (t *fakeTable) Search(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredRow, error) {
	rows := make([]ScoredRow, 0, len(t.rows))
	for _, r := range t.rows {
		rows = append(rows, ScoredRow{UUID: r.UUID, Path: r.Path, CacheKey: r.CacheKey, Distance: 0})
	}
	return rows, nil
}
