// Package jobs holds River job definitions: the rollup tick is the
// external scheduler the Rollup Batcher assumes, driven by two periodic
// jobs (an interval tick and a max-interval forced tick) registered at
// startup rather than invoked directly.
package jobs

import (
	"context"
	"fmt"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/rollup"
)

// RollupTickArgs is the periodic job that invokes the batcher's process()
// on the regular rollup_interval cadence. The batcher's own threshold
// gate decides whether a rollup actually happens.
type RollupTickArgs struct{}

// Kind returns the job kind identifier for the regular rollup tick.
func (RollupTickArgs) Kind() string { return "rollup_tick" }

// InsertOpts ensures at most one regular tick is queued at a time.
func (RollupTickArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByQueue: true,
			ByArgs:  true,
		},
	}
}

// RollupForceTickArgs is the periodic job on rollup_max_interval: it
// invokes the same process() call as the regular tick. Batcher.Process
// applies its min_rollup_size gate on this path too, so a batch below
// the threshold stays deferred; this job does not bypass the gate.
type RollupForceTickArgs struct{}

// Kind returns the job kind identifier for the forced rollup tick.
func (RollupForceTickArgs) Kind() string { return "rollup_force_tick" }

// InsertOpts ensures at most one forced tick is queued at a time.
func (RollupForceTickArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 1,
		UniqueOpts: river.UniqueOpts{
			ByQueue: true,
			ByArgs:  true,
		},
	}
}

// RollupTickWorker runs the batcher's process() for the regular tick job
// kind; RollupForceTickWorker handles the forced kind.
type RollupTickWorker struct {
	river.WorkerDefaults[RollupTickArgs]
	batcher *rollup.Batcher
}

// NewRollupTickWorker builds a RollupTickWorker bound to batcher.
func NewRollupTickWorker(batcher *rollup.Batcher) *RollupTickWorker {
	return &RollupTickWorker{batcher: batcher}
}

// Work runs one rollup tick.
func (w *RollupTickWorker) Work(ctx context.Context, _ *river.Job[RollupTickArgs]) error {
	if w == nil || w.batcher == nil {
		return fmt.Errorf("rollup tick worker is not initialized")
	}
	if err := w.batcher.Process(ctx); err != nil {
		logger.Warn("rollup tick failed", zap.Error(err))
		return err
	}
	return nil
}

// RollupForceTickWorker runs the batcher's process() on the forced-tick
// job kind; the algorithm is identical to RollupTickWorker's, only the
// scheduling cadence differs.
type RollupForceTickWorker struct {
	river.WorkerDefaults[RollupForceTickArgs]
	batcher *rollup.Batcher
}

// NewRollupForceTickWorker builds a RollupForceTickWorker bound to batcher.
func NewRollupForceTickWorker(batcher *rollup.Batcher) *RollupForceTickWorker {
	return &RollupForceTickWorker{batcher: batcher}
}

// Work runs one forced rollup tick.
func (w *RollupForceTickWorker) Work(ctx context.Context, _ *river.Job[RollupForceTickArgs]) error {
	if w == nil || w.batcher == nil {
		return fmt.Errorf("rollup force tick worker is not initialized")
	}
	if err := w.batcher.Process(ctx); err != nil {
		logger.Warn("rollup force tick failed", zap.Error(err))
		return err
	}
	return nil
}
