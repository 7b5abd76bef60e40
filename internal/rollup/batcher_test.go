package rollup

import (
	"context"
	"testing"

	"chainstore.io/node/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestProcess_NoConfig_ReturnsWithoutError(t *testing.T) {
	store := newFakeStore()
	b := NewBatcher(store, store)

	if err := b.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v, want nil", err)
	}
	if store.flushCall != 0 {
		t.Errorf("FlushState should not be called before a config is set")
	}
}

func TestProcess_BelowThreshold_LeavesPendingCounters(t *testing.T) {
	store := newFakeStore()
	store.addMutations(0, 500, 4)
	b := NewBatcher(store, store)
	b.UpdateConfig(SystemConfig{MinRollupSize: 1 << 30, MinGcRoundOffset: 2}, newFakeBlobStore(), &fakeContractClient{})

	if err := b.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(store.rollups) != 0 {
		t.Fatalf("expected no rollup record, got %d", len(store.rollups))
	}
	// Blocks 0..499 are stored; the window is [0, 499), so the mutation
	// at the highest block (499) waits for a later tick.
	counters := b.PendingCounters()
	if counters.PendingMutations != 499 {
		t.Errorf("PendingMutations = %d, want 499", counters.PendingMutations)
	}
	if counters.PendingDataSize == 0 {
		t.Errorf("PendingDataSize should reflect the serialized batch size")
	}
	if counters.PendingEndBlock != 499 {
		t.Errorf("PendingEndBlock = %d, want 499", counters.PendingEndBlock)
	}
}

func TestProcess_ThresholdCrossed_AppendsRollupAndResetsCounters(t *testing.T) {
	store := newFakeStore()
	store.addMutations(0, 2000, 4)
	blobs := newFakeBlobStore()
	contract := &fakeContractClient{}
	b := NewBatcher(store, store)
	b.UpdateConfig(SystemConfig{MinRollupSize: 1, MinGcRoundOffset: 2}, blobs, contract)

	if err := b.Process(context.Background()); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if len(store.rollups) != 1 {
		t.Fatalf("expected exactly one rollup record, got %d", len(store.rollups))
	}
	record := store.rollups[0]
	if record.StartBlock != 0 {
		t.Errorf("StartBlock = %d, want 0", record.StartBlock)
	}
	if record.EndBlock != 1999 {
		t.Errorf("EndBlock = %d, want 1999", record.EndBlock)
	}
	// The rolled-up range is [0, 1999): block 1999 is left for the next tick.
	if record.MutationCount != 1999 {
		t.Errorf("MutationCount = %d, want 1999", record.MutationCount)
	}
	if blobs.uploads != 1 {
		t.Errorf("expected exactly one blob upload, got %d", blobs.uploads)
	}
	if contract.calls != 1 {
		t.Errorf("expected exactly one contract commit, got %d", contract.calls)
	}

	counters := b.PendingCounters()
	if counters.PendingMutations != 0 || counters.PendingDataSize != 0 {
		t.Errorf("pending counters should reset to zero after a rollup, got %+v", counters)
	}
}

func TestProcess_NothingNewSinceLastRollup_IsNoop(t *testing.T) {
	store := newFakeStore()
	store.addMutations(0, 10, 4)
	b := NewBatcher(store, store)
	b.UpdateConfig(SystemConfig{MinRollupSize: 1, MinGcRoundOffset: 2}, newFakeBlobStore(), &fakeContractClient{})

	if err := b.Process(context.Background()); err != nil {
		t.Fatalf("first Process() error = %v", err)
	}
	firstRollupCount := len(store.rollups)

	if err := b.Process(context.Background()); err != nil {
		t.Fatalf("second Process() error = %v", err)
	}
	if len(store.rollups) != firstRollupCount {
		t.Errorf("second tick with no new blocks appended a rollup record")
	}
}
