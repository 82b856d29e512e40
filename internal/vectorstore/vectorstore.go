// Package vectorstore defines the Vector Table Manager: the per-tag
// columnar store abstraction (§4.3, §6) and its Qdrant-backed realization.
package vectorstore

import (
	"context"

	"github.com/jamaly87/vectorindex/internal/models"
)

// Predicate is a literal-equality predicate over cachekey and path, as used
// by remove-tag and delete (§4.1 step 6). It is never rendered as a
// textual grammar — implementations translate it directly into typed,
// pre-escaped filter terms, which is how the predicate-quoting open
// question in §4.3 is resolved: there is no string to break.
type Predicate struct {
	CacheKey string
	Path     string
}

// SearchOptions configures a single Table.Search call (§4.6).
type SearchOptions struct {
	Limit    int
	PathLike string // predicate "path LIKE '<PathLike>%'" when non-empty
}

// ScoredRow is a vector-table hit joined with its ascending distance.
type ScoredRow struct {
	UUID     string
	Path     string
	CacheKey string
	Distance float64
}

// Table is a single per-tag vector table (one Qdrant collection in the
// concrete binding).
type Table interface {
	// Add batch-inserts rows. What a duplicate uuid across calls does is up
	// to the binding (the Qdrant binding upserts, replacing the earlier
	// point); callers must not retry a successful Add (§4.3).
	Add(ctx context.Context, rows []Row) error
	// Delete removes every row matching any of the given predicates.
	Delete(ctx context.Context, predicates []Predicate) error
	// Search runs a nearest-neighbor query, ascending by distance.
	Search(ctx context.Context, vector []float32, opts SearchOptions) ([]ScoredRow, error)
}

// Row is the vector-table entry shape Add accepts (§3) — identical to the
// embedding cache's row identity fields, so rows reconstructed from the
// cache (add-tag) need no conversion before insertion.
type Row = models.ChunkRow

// Store is the Vector Table Manager's top-level handle: lazy
// creation/open of per-tag tables (§4.3 state machine).
type Store interface {
	// TableNames lists every table (tag) currently present.
	TableNames(ctx context.Context) ([]string, error)
	// OpenTable opens an existing table. Callers should check TableNames
	// (or catch a not-found error) before calling this for a table that
	// may not exist yet.
	OpenTable(ctx context.Context, name string) (Table, error)
	// CreateTable lazily creates a table (Absent → Created transition)
	// seeded with initial rows. With empty initial no table is created and
	// ErrTableNotFound is returned.
	CreateTable(ctx context.Context, name string, initial []Row) (Table, error)
}

// ErrTableNotFound is returned by OpenTable when no table exists under
// that name.
var ErrTableNotFound = tableNotFoundError{}

type tableNotFoundError struct{}

func (tableNotFoundError) Error() string { return "vectorstore: table not found" }
