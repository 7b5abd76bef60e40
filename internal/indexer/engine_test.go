package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"chainstore.io/node/internal/mutation"
	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/pkg/worker"
	"chainstore.io/node/internal/registry"
	"chainstore.io/node/internal/txverify"
)

func init() {
	_ = logger.Init("error", "json")
}

// fakeMutationStore is an in-memory MutationStore + BlockStateStore +
// EventDBStore used by every engine test.
type fakeMutationStore struct {
	mu        sync.Mutex
	applied   map[string]mutation.Mutation // keyed by signer|nonce
	blockHi   uint64
	watermark *mutation.BlockState
	eventDBs  []mutation.EventDatabaseDescriptor
}

func newFakeStore() *fakeMutationStore {
	return &fakeMutationStore{applied: make(map[string]mutation.Mutation)}
}

func (f *fakeMutationStore) ApplyMutation(ctx context.Context, m mutation.Mutation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := m.Signer + "|" + itoa(m.Nonce)
	f.applied[key] = m
	if m.Header.Block > f.blockHi {
		f.blockHi = m.Header.Block
	}
	return nil
}
func itoa(n uint64) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (f *fakeMutationStore) FlushState(ctx context.Context) error { return nil }
func (f *fakeMutationStore) GetCurrentBlock(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blockHi, nil
}
func (f *fakeMutationStore) GetRangeMutations(ctx context.Context, start, end uint64) ([]mutation.Mutation, error) {
	return nil, nil
}
func (f *fakeMutationStore) GCRangeMutation(ctx context.Context, start, end uint64) error { return nil }

func (f *fakeMutationStore) RecoverBlockState(ctx context.Context) (*mutation.BlockState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, nil
}
func (f *fakeMutationStore) SaveBlockState(ctx context.Context, bs mutation.BlockState) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.watermark = &bs
	return nil
}

func (f *fakeMutationStore) GetAllEventDB(ctx context.Context) ([]mutation.EventDatabaseDescriptor, error) {
	return f.eventDBs, nil
}
func (f *fakeMutationStore) SaveEventDB(ctx context.Context, d mutation.EventDatabaseDescriptor) error {
	f.eventDBs = append(f.eventDBs, d)
	return nil
}
func (f *fakeMutationStore) GetCollectionsOfDatabase(ctx context.Context, db string) ([]string, error) {
	return nil, nil
}

// fakePrimaryClient serves a fixed set of wrappers from GetBlocks and
// never delivers subscription events.
type fakePrimaryClient struct {
	mu       sync.Mutex
	wrappers []mutation.Wrapper
	served   bool
}

func (f *fakePrimaryClient) GetBlocks(ctx context.Context, start, end uint64) ([]mutation.Wrapper, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.served {
		return nil, nil
	}
	f.served = true
	return f.wrappers, nil
}

func (f *fakePrimaryClient) SubscribeEventMessage(ctx context.Context) (<-chan BlockEvent, <-chan error, error) {
	events := make(chan BlockEvent)
	errs := make(chan error)
	return events, errs, nil
}

func signedWrapper(t *testing.T, block uint64, order uint32, nonce uint64) mutation.Wrapper {
	t.Helper()
	env := mutation.Envelope{Action: mutation.ActionAddDocument, Nonce: nonce, Body: json.RawMessage(`{"db":"d","collection":"c","documents":[]}`)}
	payload, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	digest := crypto.Keccak256Hash(payload)
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return mutation.Wrapper{
		Header:    mutation.Header{Block: block, Order: order},
		Payload:   payload,
		Signature: sig,
	}
}

// fakeChainClient is a no-op registry.ContractClient: it never delivers
// logs but satisfies Register's dial+subscribe path without a real chain.
type fakeChainClient struct{}

func (fakeChainClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return &fakeChainSubscription{errCh: make(chan error)}, nil
}
func (fakeChainClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return nil, nil
}

type fakeChainSubscription struct{ errCh chan error }

func (s *fakeChainSubscription) Unsubscribe()      {}
func (s *fakeChainSubscription) Err() <-chan error { return s.errCh }

type fakeChainDialer struct{}

func (fakeChainDialer) Dial(ctx context.Context, evmNodeURL string) (registry.ContractClient, error) {
	return fakeChainClient{}, nil
}

func newTestEngine(t *testing.T, primary PrimaryClient, store *fakeMutationStore) *Engine {
	t.Helper()
	return newTestEngineWithConfig(t, DefaultConfig(), primary, store)
}

func newTestEngineWithConfig(t *testing.T, cfg Config, primary PrimaryClient, store *fakeMutationStore) *Engine {
	t.Helper()
	pools, err := worker.NewPools(context.Background(), worker.DefaultPoolConfig())
	if err != nil {
		t.Fatalf("NewPools() error = %v", err)
	}
	t.Cleanup(pools.Shutdown)

	reg := registry.New(fakeChainDialer{}, pools, nil)
	return New(cfg, store, store, store, txverify.New(), reg, primary, nil)
}

// flakyPrimaryClient fails its first SubscribeEventMessage call, then
// succeeds on the second, delivering one BlockEvent.
type flakyPrimaryClient struct {
	mu       sync.Mutex
	attempts int
	wrappers []mutation.Wrapper
}

func (f *flakyPrimaryClient) GetBlocks(ctx context.Context, start, end uint64) ([]mutation.Wrapper, error) {
	return f.wrappers, nil
}

func (f *flakyPrimaryClient) SubscribeEventMessage(ctx context.Context) (<-chan BlockEvent, <-chan error, error) {
	f.mu.Lock()
	f.attempts++
	attempt := f.attempts
	f.mu.Unlock()

	if attempt == 1 {
		return nil, nil, errors.New("connection refused")
	}

	events := make(chan BlockEvent, 1)
	events <- BlockEvent{BlockID: 5, MutationCount: 1}
	errCh := make(chan error)
	return events, errCh, nil
}

func TestRecoverFromFetchedBlocks_AppliesAndStops(t *testing.T) {
	store := newFakeStore()
	w1 := signedWrapper(t, 1, 0, 1)
	w2 := signedWrapper(t, 2, 0, 1)
	primary := &fakePrimaryClient{wrappers: []mutation.Wrapper{w1, w2}}

	e := newTestEngine(t, primary, store)

	if err := e.RecoverFromFetchedBlocks(context.Background()); err != nil {
		t.Fatalf("RecoverFromFetchedBlocks() error = %v", err)
	}

	block, err := store.GetCurrentBlock(context.Background())
	if err != nil {
		t.Fatalf("GetCurrentBlock() error = %v", err)
	}
	if block != 2 {
		t.Errorf("current block = %d, want 2", block)
	}
	if len(store.applied) != 2 {
		t.Errorf("applied count = %d, want 2", len(store.applied))
	}
}

func TestRecoverFromFetchedBlocks_Idempotent(t *testing.T) {
	store := newFakeStore()
	w := signedWrapper(t, 1, 0, 1)
	primary := &fakePrimaryClient{wrappers: []mutation.Wrapper{w}}
	e := newTestEngine(t, primary, store)

	if err := e.RecoverFromFetchedBlocks(context.Background()); err != nil {
		t.Fatalf("first recovery error = %v", err)
	}
	firstCount := len(store.applied)

	primary.served = false // simulate the primary re-serving the same batch
	if err := e.RecoverFromFetchedBlocks(context.Background()); err != nil {
		t.Fatalf("second recovery error = %v", err)
	}

	if len(store.applied) != firstCount {
		t.Errorf("applied count changed on replay: got %d, want %d", len(store.applied), firstCount)
	}
}

func TestRecoverState_RegistersDescriptors(t *testing.T) {
	store := newFakeStore()
	store.eventDBs = []mutation.EventDatabaseDescriptor{
		{DBAddress: "db1", EvmNodeURL: "http://evm", ContractAddr: "0xabc"},
	}
	e := newTestEngine(t, &fakePrimaryClient{}, store)

	if err := e.RecoverState(context.Background()); err != nil {
		t.Fatalf("RecoverState() error = %v", err)
	}

	time.Sleep(10 * time.Millisecond)
	statuses := e.registry.SnapshotStatus()
	if len(statuses) != 1 {
		t.Fatalf("len(statuses) = %d, want 1", len(statuses))
	}
}

// TestSubscriptionLoop_ReconnectsAfterError exercises the
// subscribe-fails -> wait -> resubscribe -> apply path: the first
// SubscribeEventMessage call errors, the loop waits the configured
// resubscribe delay, then the second call delivers a BlockEvent that
// gets applied and advances the watermark.
func TestSubscriptionLoop_ReconnectsAfterError(t *testing.T) {
	store := newFakeStore()
	w := signedWrapper(t, 5, 0, 1)
	primary := &flakyPrimaryClient{wrappers: []mutation.Wrapper{w}}

	e := newTestEngineWithConfig(t, Config{RecoverStride: 1000, ResubscribeDelay: 5 * time.Millisecond}, primary, store)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.subscriptionLoop(ctx) }()

	deadline := time.After(2 * time.Second)
	for {
		store.mu.Lock()
		applied := len(store.applied)
		store.mu.Unlock()
		if applied > 0 {
			break
		}
		select {
		case <-deadline:
			cancel()
			t.Fatal("timed out waiting for reconnect-and-apply")
		case <-time.After(5 * time.Millisecond):
		}
	}

	primary.mu.Lock()
	attempts := primary.attempts
	primary.mu.Unlock()
	if attempts < 2 {
		t.Errorf("SubscribeEventMessage attempts = %d, want >= 2 (reconnect never happened)", attempts)
	}

	block, err := store.GetCurrentBlock(ctx)
	if err != nil {
		t.Fatalf("GetCurrentBlock() error = %v", err)
	}
	if block != 5 {
		t.Errorf("current block = %d, want 5", block)
	}

	cancel()
	<-done
}

func TestSetNetworkID(t *testing.T) {
	e := newTestEngine(t, &fakePrimaryClient{}, newFakeStore())
	e.SetNetworkID(7)
	if e.NetworkID() != 7 {
		t.Errorf("NetworkID() = %d, want 7", e.NetworkID())
	}
}
