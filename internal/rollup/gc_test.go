package rollup

import (
	"context"
	"testing"

	"chainstore.io/node/internal/mutation"
)

func addRollupRecord(t *testing.T, store *fakeStore, start, end uint64) {
	t.Helper()
	if err := store.AddRollupRecord(context.Background(), mutation.RollupRecord{StartBlock: start, EndBlock: end, RawSize: end - start}); err != nil {
		t.Fatalf("AddRollupRecord() error = %v", err)
	}
}

func TestGCReclaimer_GatesOnRoundOffset(t *testing.T) {
	store := newFakeStore()
	gc := NewGCReclaimer(store, store)

	addRollupRecord(t, store, 0, 1000)
	addRollupRecord(t, store, 1000, 2000)

	// Only one round past the oldest rollup; min_gc_offset=2 is not met.
	if err := gc.Reclaim(context.Background(), 2); err != nil {
		t.Fatalf("Reclaim() error = %v", err)
	}
	if len(store.gcs) != 0 {
		t.Fatalf("expected no GC record yet, got %d", len(store.gcs))
	}
}

func TestGCReclaimer_ReclaimsOldestThenSecond(t *testing.T) {
	store := newFakeStore()
	store.addMutations(0, 10, 4) // blocks in [0, 1000) fall under the first rollup
	gc := NewGCReclaimer(store, store)

	addRollupRecord(t, store, 0, 1000)
	addRollupRecord(t, store, 1000, 2000)
	addRollupRecord(t, store, 2000, 3000)

	if err := gc.Reclaim(context.Background(), 2); err != nil {
		t.Fatalf("first Reclaim() error = %v", err)
	}
	if len(store.gcs) != 1 {
		t.Fatalf("expected exactly one GC record, got %d", len(store.gcs))
	}
	if store.gcs[0].StartBlock != 0 || store.gcs[0].EndBlock != 1000 {
		t.Errorf("first GC record = %+v, want [0,1000)", store.gcs[0])
	}
	if len(store.muts) != 0 {
		t.Errorf("expected mutations in [0,1000) to be reclaimed, %d remain", len(store.muts))
	}

	addRollupRecord(t, store, 3000, 4000)
	if err := gc.Reclaim(context.Background(), 2); err != nil {
		t.Fatalf("second Reclaim() error = %v", err)
	}
	if len(store.gcs) != 2 {
		t.Fatalf("expected two GC records, got %d", len(store.gcs))
	}
	if store.gcs[1].StartBlock != 1000 || store.gcs[1].EndBlock != 2000 {
		t.Errorf("second GC record = %+v, want [1000,2000)", store.gcs[1])
	}
}
