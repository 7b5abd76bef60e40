package rollup

import (
	"context"
	"time"

	"chainstore.io/node/internal/mutation"
	"chainstore.io/node/internal/storage"
)

// GCReclaimer retires mutation-log ranges once a configurable number of
// rollup rounds have completed past them. It never overtakes the rollup
// log by more than zero records: one call reclaims exactly the oldest
// unreclaimed rolled-up range.
type GCReclaimer struct {
	mutations storage.MutationStore
	rollups   storage.RollupStore
}

// NewGCReclaimer builds a GCReclaimer sharing the mutation and rollup
// stores with the Batcher that invokes it.
func NewGCReclaimer(mutations storage.MutationStore, rollups storage.RollupStore) *GCReclaimer {
	return &GCReclaimer{mutations: mutations, rollups: rollups}
}

// Reclaim runs one GC pass. minGcRoundOffset is how many rollup rounds
// must have completed past the last GC target before reclamation is
// safe.
func (g *GCReclaimer) Reclaim(ctx context.Context, minGcRoundOffset uint64) error {
	start := time.Now()

	lastGc, err := g.rollups.GetLastGcRecord(ctx)
	if err != nil {
		return err
	}

	var lastGcStart uint64
	firstRun := lastGc == nil
	if !firstRun {
		lastGcStart = lastGc.StartBlock
	}

	enough, err := g.rollups.HasEnoughRoundLeft(ctx, lastGcStart, minGcRoundOffset)
	if err != nil {
		return err
	}
	if !enough {
		return nil // nothing safe to reclaim yet
	}

	var next *mutation.RollupRecord
	if firstRun {
		next, err = g.rollups.GetRollupRecord(ctx, 0)
	} else {
		next, err = g.rollups.GetNextRollupRecord(ctx, lastGcStart)
	}
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}

	if err := g.mutations.GCRangeMutation(ctx, next.StartBlock, next.EndBlock); err != nil {
		return err
	}

	record := mutation.GcRecord{
		StartBlock:       next.StartBlock,
		EndBlock:         next.EndBlock,
		DataSize:         next.RawSize,
		WallTimeUnix:     time.Now().Unix(),
		ProcessedSeconds: time.Since(start).Seconds(),
	}
	return g.rollups.AddGcRecord(ctx, record)
}
