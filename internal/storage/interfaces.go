// Package storage defines the catalog's generic record store: a small
// table-oriented interface the pipeline components share, the table
// registry that whitelists catalog tables and their columns, and a guarded
// decorator that keeps a misbehaving backend from wedging the polling
// loops. Concrete implementations live in the sqlite and postgres
// subpackages.
package storage

import (
	"context"

	"github.com/carverlabs/scribe/pkg/types"
)

// Store is the generic record store the catalog runs on. Every method
// validates the table name against the registry and returns ErrUnknownTable
// for anything outside it; the routing taxonomy is the only place new
// tables come from.
type Store interface {
	// Select returns the records matching q, in q's order. An empty result
	// is not an error.
	Select(ctx context.Context, table string, q Query) ([]types.Record, error)

	// Get retrieves a single record by id.
	// Returns ErrNotFound if no record exists with the given id.
	Get(ctx context.Context, table, id string) (types.Record, error)

	// Insert writes a new record and returns it as stored. A missing id is
	// generated; missing created_at/updated_at are stamped with the current
	// UTC time.
	Insert(ctx context.Context, table string, rec types.Record) (types.Record, error)

	// Update applies the given column changes to the record with the given
	// id and returns the updated record. updated_at is stamped unless the
	// changes set it explicitly.
	// Returns ErrNotFound if no record exists with the given id.
	Update(ctx context.Context, table, id string, changes types.Record) (types.Record, error)

	// Delete removes the records with the given ids and reports how many
	// rows were actually deleted. Missing ids are not an error; callers
	// compare the count when exactness matters.
	Delete(ctx context.Context, table string, ids []string) (int, error)

	// Count returns the number of records matching q, ignoring q's limit
	// and offset.
	Count(ctx context.Context, table string, q Query) (int, error)

	// Close releases the underlying database resources.
	Close() error
}
