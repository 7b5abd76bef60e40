package indexer

import (
	"context"

	"chainstore.io/node/internal/mutation"
)

// BlockEvent is the subscription event kind that triggers a watermark
// advance: a new block has landed on the primary node with
// mutationCount mutations in it.
type BlockEvent struct {
	BlockID       uint64
	MutationCount uint64
}

// PrimaryClient is the primary node's block-stream and block-range API,
// as consumed by the Block Sync Engine.
type PrimaryClient interface {
	// GetBlocks requests mutations in [start, end).
	GetBlocks(ctx context.Context, start, end uint64) ([]mutation.Wrapper, error)

	// SubscribeEventMessage opens a long-lived event stream. The returned
	// channel is closed when the subscription ends (error or context
	// cancellation); errCh delivers the terminal error, if any.
	SubscribeEventMessage(ctx context.Context) (events <-chan BlockEvent, errCh <-chan error, err error)
}

// BlobRecoverer replays every rollup blob whose end_block exceeds
// watermark, decoding mutations idempotently for re-application. This is
// the authoritative cold-start source after total local data loss.
type BlobRecoverer interface {
	RecoverSince(ctx context.Context, watermark uint64) ([]mutation.Mutation, error)
}
