package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound indicates that the requested record was not found.
	ErrNotFound = errors.New("record not found")

	// ErrInvalidInput indicates that the input parameters are invalid.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownTable indicates a table name outside the catalog registry.
	ErrUnknownTable = errors.New("unknown table")

	// ErrStoreUnavailable indicates the guarded store's circuit breaker is
	// open and calls are being rejected without touching the backend.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Filter provides equality matches on columns, ANDed together.
type Filter map[string]any

// Query describes a bounded read against one catalog table. The zero value
// selects everything in default order; callers narrow it with filters and
// time bounds.
type Query struct {
	// Filter matches columns by equality.
	Filter Filter

	// In matches a column against any of the given values.
	In map[string][]string

	// Null lists columns that must be NULL (or empty, for text columns
	// where the catalog writes "" instead of NULL).
	Null []string

	// Before bounds time columns exclusively from above (column < t).
	Before map[string]time.Time

	// After bounds time columns inclusively from below (column >= t).
	After map[string]time.Time

	// OrderBy names the sort column. Must appear in the table's registry;
	// Normalize falls back to created_at otherwise.
	OrderBy string

	// Descending reverses the sort order. Default is ascending, which is
	// what creation-order pipeline scans want.
	Descending bool

	// Limit caps the result size. Zero or negative means unbounded; the
	// pipeline components always pass their own explicit batch caps.
	Limit int

	// Offset skips rows for paginated listings.
	Offset int
}

// Normalize validates the query against a table's registered columns and
// fixes up unusable values. Unknown sort columns fall back to created_at so
// a typo degrades to default order instead of injecting SQL.
func (q *Query) Normalize(spec *TableSpec) {
	if q.OrderBy == "" || spec == nil || !spec.HasColumn(q.OrderBy) {
		q.OrderBy = "created_at"
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
}

// CountByStatus is a status -> row count aggregation for stats reporting.
type CountByStatus map[string]int

// Total sums all status buckets.
func (c CountByStatus) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}
