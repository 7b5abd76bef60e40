package registry

import (
	"context"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"chainstore.io/node/internal/pkg/logger"
)

// defaultListenerResubscribeDelay is the fixed wait before a listener
// re-subscribes after its subscription errors, matching the indexer's
// own resubscribe-with-backoff cadence.
const defaultListenerResubscribeDelay = 5 * time.Second

// ContractClient is the subset of go-ethereum's ethclient.Client (and,
// transitively, bind.ContractFilterer) a per-contract event listener
// needs: live log subscription plus a one-shot backlog fetch.
type ContractClient interface {
	SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
}

// EventHandlerFunc reacts to a single on-chain log a listener observes.
// Errors are logged and do not stop the listener.
type EventHandlerFunc func(ctx context.Context, dbAddress string, log types.Log) error

// listener is a per-contract background task observing on-chain Log
// events for a user database's bound contract.
type listener struct {
	dbAddress    string
	contractAddr common.Address
	client       ContractClient
	startBlock   uint64
	onEvent      EventHandlerFunc

	blockNumber atomic.Uint64
	eventCount  atomic.Uint64
}

func newListener(dbAddress string, contractAddr common.Address, client ContractClient, startBlock uint64, onEvent EventHandlerFunc) *listener {
	l := &listener{
		dbAddress:    dbAddress,
		contractAddr: contractAddr,
		client:       client,
		startBlock:   startBlock,
		onEvent:      onEvent,
	}
	l.blockNumber.Store(startBlock)
	return l
}

// Start runs the listener until ctx is cancelled: on a subscription
// error it waits a fixed interval and re-subscribes, indefinitely, the
// same constant-backoff reconnect pattern the indexer's subscription
// loop uses. Event listener tasks run until the process ends.
func (l *listener) Start(ctx context.Context) error {
	bo := backoff.NewConstantBackOff(defaultListenerResubscribeDelay)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := l.runOnce(ctx); err != nil {
			logger.Warn("event listener subscription error, re-subscribing",
				zap.String("db", l.dbAddress), zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// runOnce replays backlog since the listener's current high-water block,
// then subscribes and drains logs until the subscription ends (error or
// ctx cancellation).
func (l *listener) runOnce(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.contractAddr},
		FromBlock: new(big.Int).SetUint64(l.blockNumber.Load()),
	}

	backlog, err := l.client.FilterLogs(ctx, query)
	if err != nil {
		logger.Warn("event listener backlog fetch failed",
			zap.String("db", l.dbAddress), zap.Error(err))
	}
	for _, vlog := range backlog {
		l.handle(ctx, vlog)
	}

	logsCh := make(chan types.Log)
	sub, err := l.client.SubscribeFilterLogs(ctx, query, logsCh)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return err
		case vlog := <-logsCh:
			l.handle(ctx, vlog)
		}
	}
}

func (l *listener) handle(ctx context.Context, vlog types.Log) {
	l.blockNumber.Store(vlog.BlockNumber)
	l.eventCount.Add(1)
	if l.onEvent == nil {
		return
	}
	if err := l.onEvent(ctx, l.dbAddress, vlog); err != nil {
		logger.Warn("event listener handler failed",
			zap.String("db", l.dbAddress),
			zap.Uint64("block", vlog.BlockNumber),
			zap.Error(err),
		)
	}
}
