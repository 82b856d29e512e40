package vectorstore

import (
	"context"
	"errors"
	"fmt"
)

// Manager is the Vector Table Manager (§4.3): lazy table creation/open and
// batched insert/delete over the per-tag Absent → Created / Existing
// state machine. It caches no state: every call asks the Store whether
// the table exists.
type Manager struct {
	store Store
}

// NewManager wraps a Store.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// TableExists reports whether name is already present (the "Existing"
// branch of the state machine). The refresh coordinator does not call
// it; AddRows and Delete check for the table themselves.
func (m *Manager) TableExists(ctx context.Context, name string) (bool, error) {
	names, err := m.store.TableNames(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to list tables: %w", err)
	}
	for _, n := range names {
		if n == name {
			return true, nil
		}
	}
	return false, nil
}

// Open opens name, failing with ErrTableNotFound if it is absent.
func (m *Manager) Open(ctx context.Context, name string) (Table, error) {
	return m.store.OpenTable(ctx, name)
}

// AddRows inserts rows into name, lazily creating the table on first
// non-empty insert into a previously absent table (Absent → Created). If
// rows is empty the call is a no-op at the store level, but callers must
// still invoke markComplete (§4.3).
func (m *Manager) AddRows(ctx context.Context, name string, rows []Row) error {
	table, err := m.store.OpenTable(ctx, name)
	if errors.Is(err, ErrTableNotFound) {
		if len(rows) == 0 {
			return nil
		}
		_, err = m.store.CreateTable(ctx, name, rows)
		if err != nil {
			return fmt.Errorf("failed to create table %s: %w", name, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open table %s: %w", name, err)
	}
	if len(rows) == 0 {
		return nil
	}
	if err := table.Add(ctx, rows); err != nil {
		return fmt.Errorf("failed to add %d rows to %s: %w", len(rows), name, err)
	}
	return nil
}

// Delete issues a predicate deletion for each predicate against name. A
// missing table is treated as already satisfying the delete.
func (m *Manager) Delete(ctx context.Context, name string, predicates []Predicate) error {
	if len(predicates) == 0 {
		return nil
	}
	table, err := m.store.OpenTable(ctx, name)
	if errors.Is(err, ErrTableNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open table %s: %w", name, err)
	}
	if err := table.Delete(ctx, predicates); err != nil {
		return fmt.Errorf("failed to delete from %s: %w", name, err)
	}
	return nil
}
