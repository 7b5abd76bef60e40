// Package storage implements the Persistence Adapters (C6): typed
// facades over the mutation log, block-state watermark, event-database
// descriptors, rollup/gc record logs, and the per-database document
// store, backed by PostgreSQL via pgx/pgxpool.
package storage

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the pgx-backed implementation of MutationStore,
// BlockStateStore, EventDBStore, RollupStore, and DocumentStore. One
// Store wraps the node's single shared connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-connected pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ MutationStore   = (*Store)(nil)
	_ BlockStateStore = (*Store)(nil)
	_ EventDBStore    = (*Store)(nil)
	_ RollupStore     = (*Store)(nil)
	_ DocumentStore   = (*Store)(nil)
	_ AuditStore      = (*Store)(nil)
)
