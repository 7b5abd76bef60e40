// Package rollup implements the Rollup Batcher (C4) and GC Reclaimer
// (C5): periodic batching of the mutation log into compressed columnar
// blobs, an on-chain commit of each blob's id, and local reclamation of
// mutation-log ranges once they are far enough behind the last rollup.
package rollup

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"chainstore.io/node/internal/mutation"
	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/storage"
)

// Batcher runs the rollup tick. It holds no lock of its own: the mutation
// log and rollup log are safe for concurrent access by design (C6), and
// the batcher's own config cell is swapped atomically.
type Batcher struct {
	mutations storage.MutationStore
	rollups   storage.RollupStore
	gc        *GCReclaimer

	clients atomic.Pointer[rolloutConfig]

	pendingStartBlock atomic.Uint64
	pendingEndBlock   atomic.Uint64
	pendingMutations  atomic.Uint64
	pendingDataSize   atomic.Uint64
}

// NewBatcher builds a Batcher with no configuration yet set: process()
// will log a warning and return successfully until UpdateConfig is
// called, mirroring the spec's configuration gate.
func NewBatcher(mutations storage.MutationStore, rollups storage.RollupStore) *Batcher {
	return &Batcher{
		mutations: mutations,
		rollups:   rollups,
		gc:        NewGCReclaimer(mutations, rollups),
	}
}

// UpdateConfig atomically swaps the blob-store client, the on-chain
// client, and the rollup threshold settings as a single immutable unit,
// so a concurrent process() tick never observes one new handle paired
// with the other's stale value. It is called once at startup and by the
// Service Surface's Admin.UpdateSystemConfig hot-reload operation.
func (b *Batcher) UpdateConfig(cfg SystemConfig, blobStore BlobStore, contract ContractClient) {
	b.clients.Store(&rolloutConfig{
		BlobStore:        blobStore,
		Contract:         contract,
		MinRollupSize:    cfg.MinRollupSize,
		MinGcRoundOffset: cfg.MinGcRoundOffset,
		ContractAddr:     cfg.ContractAddr,
		NetworkID:        cfg.NetworkID,
	})
}

// PendingCounters snapshots the batcher's live, non-durable observability
// state.
func (b *Batcher) PendingCounters() mutation.PendingRollupCounters {
	return mutation.PendingRollupCounters{
		PendingStartBlock: b.pendingStartBlock.Load(),
		PendingEndBlock:   b.pendingEndBlock.Load(),
		PendingMutations:  b.pendingMutations.Load(),
		PendingDataSize:   b.pendingDataSize.Load(),
	}
}

func (b *Batcher) setPending(start, end, count, size uint64) {
	b.pendingStartBlock.Store(start)
	b.pendingEndBlock.Store(end)
	b.pendingMutations.Store(count)
	b.pendingDataSize.Store(size)
}

// Process runs one rollup tick. Errors up to and including appending the
// RollupRecord abort the tick and propagate to the caller (the
// scheduler), which retries on the next tick; partial progress (a blob
// uploaded or a contract call submitted without a local RollupRecord) is
// explicitly acceptable and self-heals on retry. A GC error after the
// record is appended is logged and not returned.
func (b *Batcher) Process(ctx context.Context) error {
	start := time.Now()

	cfg := b.clients.Load()
	if cfg == nil || cfg.BlobStore == nil || cfg.Contract == nil {
		logger.Warn("rollup process: no system configuration persisted, skipping tick")
		return nil
	}

	if err := b.mutations.FlushState(ctx); err != nil {
		return err
	}

	var lastStart, lastEnd uint64
	var lastBlobID string
	last, err := b.rollups.GetLastRollupRecord(ctx)
	if err != nil {
		return err
	}
	if last != nil {
		lastStart, lastEnd, lastBlobID = last.StartBlock, last.EndBlock, last.BlobID
	}

	current, err := b.mutations.GetCurrentBlock(ctx)
	if err != nil {
		return err
	}
	if current <= lastEnd {
		return nil
	}

	b.setPending(lastStart, current, 0, 0)

	muts, err := b.mutations.GetRangeMutations(ctx, lastEnd, current)
	if err != nil {
		return err
	}
	if len(muts) == 0 {
		return nil
	}

	compressed, rawSize, compressedSize, err := encodeBatch(muts)
	if err != nil {
		return err
	}

	if rawSize < cfg.MinRollupSize {
		b.setPending(lastStart, current, uint64(len(muts)), rawSize)
		return nil
	}

	// Threshold crossed: the batch is in flight, nothing is queued behind
	// it until the next tick observes a new high-water mark.
	b.setPending(0, 0, 0, 0)

	upload, err := cfg.BlobStore.Upload(ctx, lastBlobID, lastEnd, current, compressed, uint64(len(muts)), cfg.NetworkID)
	if err != nil {
		return err
	}

	commit, err := cfg.Contract.UpdateRollupStep(ctx, upload.BlobID, cfg.NetworkID)
	if err != nil {
		return err
	}

	record := mutation.RollupRecord{
		StartBlock:       lastEnd,
		EndBlock:         current,
		RawSize:          rawSize,
		CompressedSize:   compressedSize,
		MutationCount:    uint64(len(muts)),
		BlobID:           upload.BlobID,
		BlobCost:         upload.BlobCost,
		EvmTx:            commit.TxHash,
		EvmCost:          commit.GasCost,
		WallTimeUnix:     time.Now().Unix(),
		ProcessedSeconds: time.Since(start).Seconds(),
	}
	if err := b.rollups.AddRollupRecord(ctx, record); err != nil {
		return err
	}

	if err := b.gc.Reclaim(ctx, cfg.MinGcRoundOffset); err != nil {
		logger.Warn("gc reclaim failed after rollup", zap.Error(err))
	}
	return nil
}
