// Package registry implements the Event Processor Registry (C2): a
// concurrency-safe map from contract address to a live per-contract
// blockchain-event listener, in the idiom of the teacher's mutex-guarded
// event dispatcher — the lock is held only around map access, never
// across I/O.
package registry

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/grpc/codes"

	apperrors "chainstore.io/node/internal/pkg/errors"
	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/pkg/worker"

	"go.uber.org/zap"
)

// ClientDialer builds a ContractClient for an EVM endpoint. Satisfied by
// a thin wrapper over ethclient.Dial.
type ClientDialer interface {
	Dial(ctx context.Context, evmNodeURL string) (ContractClient, error)
}

// Status is a listener's observable progress, returned by
// SnapshotStatus.
type Status struct {
	Addr        string
	EvmNodeURL  string
	BlockNumber uint64
	EventNumber uint64
	Failed      bool
}

// ProcessorHandle wraps a listener and its observable state.
type ProcessorHandle struct {
	dbAddress  string
	evmNodeURL string
	listener   *listener
	failed     bool
}

// Registry is the contract_address -> ProcessorHandle mapping.
type Registry struct {
	mu      sync.RWMutex
	handles map[string]*ProcessorHandle

	dialer  ClientDialer
	pools   *worker.Pools
	onEvent EventHandlerFunc
}

// New creates an empty Registry. onEvent is invoked for every log a
// listener observes. The registry writes nothing to the document store
// itself, and the handler the app wires in only logs the event, so an
// observed log never becomes a document-store mutation.
func New(dialer ClientDialer, pools *worker.Pools, onEvent EventHandlerFunc) *Registry {
	return &Registry{
		handles: make(map[string]*ProcessorHandle),
		dialer:  dialer,
		pools:   pools,
		onEvent: onEvent,
	}
}

// Register constructs a listener bound to contractAddr, inserts it under
// contractAddr, and spawns its background loop. Fails with
// AlreadyRegistered if the key exists. The registry has no
// deregistration, so an existing entry is never replaced.
func (r *Registry) Register(ctx context.Context, dbAddress, evmNodeURL string, eventNames []string, contractAddr string, startBlock uint64) error {
	// Check-before-dial is an optimistic fast path: the authoritative
	// check happens under the lock below, after the dial, so a
	// concurrent Register racing on the same contract still fails
	// exactly one of the two callers with AlreadyRegistered.
	r.mu.RLock()
	_, exists := r.handles[contractAddr]
	r.mu.RUnlock()
	if exists {
		return apperrors.AlreadyRegistered(contractAddr)
	}

	// Dialing is network I/O and must happen outside the lock.
	client, err := r.dialer.Dial(ctx, evmNodeURL)
	if err != nil {
		return apperrors.Wrap(err, "DIAL_FAILED", "failed to dial evm node", codes.Unavailable)
	}

	lst := newListener(dbAddress, common.HexToAddress(contractAddr), client, startBlock, r.onEvent)
	handle := &ProcessorHandle{dbAddress: dbAddress, evmNodeURL: evmNodeURL, listener: lst}

	r.mu.Lock()
	if _, exists := r.handles[contractAddr]; exists {
		r.mu.Unlock()
		return apperrors.AlreadyRegistered(contractAddr)
	}
	r.handles[contractAddr] = handle
	r.mu.Unlock()

	// Spawning the listener is outside the lock: holders must not perform
	// I/O while holding it.
	err = r.pools.SubmitDetached(func(ctx context.Context) {
		if err := lst.Start(ctx); err != nil {
			logger.Error("event listener exited",
				zap.String("contract", contractAddr), zap.Error(err))
			r.markFailed(contractAddr)
		}
	})
	if err != nil {
		// The entry stays in the map (at-most-one-per-contract still
		// holds) but is marked failed so SnapshotStatus surfaces it
		// rather than silently reporting stale progress.
		logger.Error("failed to spawn event listener",
			zap.String("contract", contractAddr), zap.Error(err))
		r.markFailed(contractAddr)
	}
	return nil
}

func (r *Registry) markFailed(contractAddr string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[contractAddr]; ok {
		h.failed = true
	}
}

// SnapshotStatus reads each handle's observable progress. Iteration holds
// the lock for the duration of the snapshot.
func (r *Registry) SnapshotStatus() []Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Status, 0, len(r.handles))
	for addr, h := range r.handles {
		out = append(out, Status{
			Addr:        addr,
			EvmNodeURL:  h.evmNodeURL,
			BlockNumber: h.listener.blockNumber.Load(),
			EventNumber: h.listener.eventCount.Load(),
			Failed:      h.failed,
		})
	}
	return out
}
