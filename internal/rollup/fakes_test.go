package rollup

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"chainstore.io/node/internal/mutation"
)

// fakeStore is an in-memory storage.MutationStore + storage.RollupStore
// used across batcher_test.go and gc_test.go.
type fakeStore struct {
	mu        sync.Mutex
	muts      []mutation.Mutation
	rollups   []mutation.RollupRecord
	gcs       []mutation.GcRecord
	flushCall int
}

func newFakeStore() *fakeStore { return &fakeStore{} }

func (f *fakeStore) ApplyMutation(ctx context.Context, m mutation.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.muts = append(f.muts, m)
	return nil
}

func (f *fakeStore) FlushState(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCall++
	return nil
}

func (f *fakeStore) GetCurrentBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var hi uint64
	for _, m := range f.muts {
		if m.Header.Block > hi {
			hi = m.Header.Block
		}
	}
	return hi, nil
}

func (f *fakeStore) GetRangeMutations(ctx context.Context, start, end uint64) ([]mutation.Mutation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mutation.Mutation
	for _, m := range f.muts {
		if m.Header.Block >= start && m.Header.Block < end {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GCRangeMutation(ctx context.Context, start, end uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.muts[:0]
	for _, m := range f.muts {
		if m.Header.Block >= start && m.Header.Block < end {
			continue
		}
		kept = append(kept, m)
	}
	f.muts = kept
	return nil
}

func (f *fakeStore) GetLastRollupRecord(ctx context.Context) (*mutation.RollupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rollups) == 0 {
		return nil, nil
	}
	r := f.rollups[len(f.rollups)-1]
	return &r, nil
}

func (f *fakeStore) GetRollupRecord(ctx context.Context, start uint64) (*mutation.RollupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rollups {
		if r.StartBlock == start {
			rr := r
			return &rr, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetNextRollupRecord(ctx context.Context, afterStart uint64) (*mutation.RollupRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]mutation.RollupRecord(nil), f.rollups...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartBlock < sorted[j].StartBlock })
	for _, r := range sorted {
		if r.StartBlock > afterStart {
			rr := r
			return &rr, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AddRollupRecord(ctx context.Context, r mutation.RollupRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rollups = append(f.rollups, r)
	return nil
}

func (f *fakeStore) GetLastGcRecord(ctx context.Context) (*mutation.GcRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.gcs) == 0 {
		return nil, nil
	}
	r := f.gcs[len(f.gcs)-1]
	return &r, nil
}

func (f *fakeStore) HasEnoughRoundLeft(ctx context.Context, lastGcStart uint64, minOffset uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count uint64
	for _, r := range f.rollups {
		if r.StartBlock > lastGcStart {
			count++
		}
	}
	return count >= minOffset, nil
}

func (f *fakeStore) AddGcRecord(ctx context.Context, r mutation.GcRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gcs = append(f.gcs, r)
	return nil
}

// addMutations injects n mutations at consecutive blocks starting at
// startBlock, each with body payload of bodySize bytes so the encoded
// columnar batch's raw size is controllable.
func (f *fakeStore) addMutations(startBlock uint64, n int, bodySize int) {
	body, _ := json.Marshal(map[string]string{"pad": string(make([]byte, bodySize))})
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.muts = append(f.muts, mutation.Mutation{
			Header: mutation.Header{Block: startBlock + uint64(i), Order: 0},
			Action: mutation.ActionAddDocument,
			Body:   json.RawMessage(body),
			Signer: "0xsigner",
			Nonce:  uint64(i),
		})
	}
}

// fakeBlobStore is an in-memory BlobStore keyed by a counter-based id.
type fakeBlobStore struct {
	mu      sync.Mutex
	blobs   map[string][]byte
	nextID  int
	uploads int
}

func newFakeBlobStore() *fakeBlobStore {
	return &fakeBlobStore{blobs: make(map[string][]byte)}
}

func (b *fakeBlobStore) Upload(ctx context.Context, prevBlobID string, startBlock, endBlock uint64, payload []byte, numRows uint64, networkID uint64) (UploadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := "blob-" + itoaTest(b.nextID)
	b.blobs[id] = payload
	b.uploads++
	return UploadResult{BlobID: id, BlobCost: 10, NumRows: numRows, CompressedSize: uint64(len(payload))}, nil
}

func (b *fakeBlobStore) FetchBlob(ctx context.Context, blobID string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.blobs[blobID], nil
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var digits []byte
	for n > 0 {
		digits = append([]byte{byte('0' + n%10)}, digits...)
		n /= 10
	}
	return string(digits)
}

// fakeContractClient is an in-memory ContractClient.
type fakeContractClient struct {
	mu    sync.Mutex
	calls int
}

func (c *fakeContractClient) UpdateRollupStep(ctx context.Context, blobID string, networkID uint64) (CommitResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return CommitResult{TxHash: "0xtx" + itoaTest(c.calls), GasCost: 21000}, nil
}
