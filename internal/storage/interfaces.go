package storage

import (
	"context"
	"encoding/json"

	"chainstore.io/node/internal/mutation"
)

// MutationStore is the typed facade over the mutation log (block_store,
// tx_store) used by the indexer and the rollup batcher.
type MutationStore interface {
	// ApplyMutation persists m idempotently, keyed on (signer, nonce) and
	// (block, order). It is also responsible for routing the mutation's
	// action into the document store.
	ApplyMutation(ctx context.Context, m mutation.Mutation) error

	// FlushState is a no-op synchronization point mirroring the original
	// in-memory-buffer flush; present so callers can treat pending writes
	// as durable before reading GetCurrentBlock.
	FlushState(ctx context.Context) error

	// GetCurrentBlock returns the highest block present in the mutation log.
	GetCurrentBlock(ctx context.Context) (uint64, error)

	// GetRangeMutations returns all mutations with block in [start, end).
	GetRangeMutations(ctx context.Context, start, end uint64) ([]mutation.Mutation, error)

	// GCRangeMutation deletes all mutation log entries with block in
	// [start, end).
	GCRangeMutation(ctx context.Context, start, end uint64) error
}

// BlockStateStore is the typed facade over the block_state watermark.
type BlockStateStore interface {
	// RecoverBlockState returns the persisted watermark, or nil if none
	// has ever been saved.
	RecoverBlockState(ctx context.Context) (*mutation.BlockState, error)

	// SaveBlockState persists the new high-water mark.
	SaveBlockState(ctx context.Context, bs mutation.BlockState) error
}

// EventDBStore is the typed facade over event-database descriptors (db,
// collection, index, db_owner).
type EventDBStore interface {
	// GetAllEventDB returns every registered event-database descriptor.
	GetAllEventDB(ctx context.Context) ([]mutation.EventDatabaseDescriptor, error)

	// SaveEventDB persists a new or updated descriptor.
	SaveEventDB(ctx context.Context, d mutation.EventDatabaseDescriptor) error

	// GetCollectionsOfDatabase lists the collection names registered for db.
	GetCollectionsOfDatabase(ctx context.Context, db string) ([]string, error)
}

// RollupStore is the typed facade over rollup_store and gc_store.
type RollupStore interface {
	GetLastRollupRecord(ctx context.Context) (*mutation.RollupRecord, error)
	GetRollupRecord(ctx context.Context, start uint64) (*mutation.RollupRecord, error)
	GetNextRollupRecord(ctx context.Context, afterStart uint64) (*mutation.RollupRecord, error)
	AddRollupRecord(ctx context.Context, r mutation.RollupRecord) error

	GetLastGcRecord(ctx context.Context) (*mutation.GcRecord, error)
	HasEnoughRoundLeft(ctx context.Context, lastGcStart uint64, minOffset uint64) (bool, error)
	AddGcRecord(ctx context.Context, r mutation.GcRecord) error
}

// DocumentStore is the typed facade over doc, doc_owner, and collection,
// used by the Service Surface's query path.
type DocumentStore interface {
	QueryDocs(ctx context.Context, db, collection, queryStr string) ([]json.RawMessage, int, error)
}

// AuditStore is the typed facade over audit_log: an append-only record of
// admin-signed operations, recording who did what with what parameters.
type AuditStore interface {
	// RecordAction appends one audit entry. id is caller-supplied so the
	// surface can use a time-ordered identifier (uuid v7) without a
	// round-trip to the database.
	RecordAction(ctx context.Context, id, action, actor string, details map[string]any) error
}
