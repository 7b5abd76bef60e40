// Package app — composition root: wires config, persistence, the
// indexer, the registry, the rollup batcher, and the service surface
// into one Application, then drives its lifecycle.
package app

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"chainstore.io/node/internal/config"
	"chainstore.io/node/internal/indexer"
	"chainstore.io/node/internal/infrastructure"
	"chainstore.io/node/internal/jobs"
	"chainstore.io/node/internal/keystore"
	"chainstore.io/node/internal/pkg/logger"
	"chainstore.io/node/internal/pkg/worker"
	"chainstore.io/node/internal/registry"
	"chainstore.io/node/internal/rollup"
	"chainstore.io/node/internal/service"
	"chainstore.io/node/internal/storage"
	"chainstore.io/node/internal/txverify"
)

// Application holds every composed, long-lived component.
type Application struct {
	Config   *config.Config
	DB       *infrastructure.DatabaseClients
	Pools    *worker.Pools
	Engine   *indexer.Engine
	Registry *registry.Registry
	Batcher  *rollup.Batcher
	Surface  *service.Surface
	Admin    *service.Admin

	engineCtx    context.Context
	engineCancel context.CancelFunc
}

// Bootstrap initializes all dependencies.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{ListenerPoolSize: cfg.Worker.ListenerPoolSize})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	store := storage.NewStore(db.Pool)
	verifier := txverify.New()

	keys, err := keystore.New(cfg.Node.KeyRootPath)
	if err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init keystore: %w", err)
	}

	reg := registry.New(registry.EthDialer{}, pools, onContractEvent)

	batcher := rollup.NewBatcher(store, store)

	blobStore, contractClient := tryBuildRolloutClients(ctx, cfg)
	if blobStore != nil && contractClient != nil {
		batcher.UpdateConfig(rollup.SystemConfig{
			MinRollupSize:    cfg.Rollup.MinRollupSize,
			MinGcRoundOffset: cfg.Rollup.MinGcRoundOffset,
			NetworkID:        cfg.Node.NetworkID,
			ContractAddr:     cfg.Node.ContractAddr,
		}, blobStore, contractClient)
	}

	var recoverer indexer.BlobRecoverer
	if s3Blobs, ok := blobStore.(*rollup.S3BlobStore); ok {
		recoverer = rollup.NewArRecoverer(store, s3Blobs)
	}

	var primary indexer.PrimaryClient
	if cfg.Node.PrimaryNodeURL != "" {
		primary = indexer.NewHTTPPrimaryClient(cfg.Node.PrimaryNodeURL)
	} else {
		logger.Warn("no node.primary_node_url configured, backlog recovery and live subscription are disabled")
	}

	engine := indexer.New(
		indexer.Config{RecoverStride: cfg.Node.RecoverStride, ResubscribeDelay: indexer.DefaultConfig().ResubscribeDelay},
		store, store, store, verifier, reg, primary, recoverer,
	)
	engine.SetNetworkID(cfg.Node.NetworkID)
	engine.SetChainID(cfg.Node.ChainID)

	surface := service.New(engine, reg, verifier, store, store, keys, cfg.Node.AdminAddr, cfg.Node.EvmNodeURL)
	admin := service.NewAdmin(surface, batcher)

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewRollupTickWorker(batcher))
	river.AddWorker(workers, jobs.NewRollupForceTickWorker(batcher))

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.Rollup.RollupInterval),
			func() (river.JobArgs, *river.InsertOpts) { return jobs.RollupTickArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: false},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.Rollup.RollupMaxInterval),
			func() (river.JobArgs, *river.InsertOpts) { return jobs.RollupForceTickArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}

	if err := db.InitRiverClient(workers, periodic, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river workers: %w", err)
	}

	engineCtx, engineCancel := context.WithCancel(context.Background())

	return &Application{
		Config:       cfg,
		DB:           db,
		Pools:        pools,
		Engine:       engine,
		Registry:     reg,
		Batcher:      batcher,
		Surface:      surface,
		Admin:        admin,
		engineCtx:    engineCtx,
		engineCancel: engineCancel,
	}, nil
}

// onContractEvent is the Event Processor Registry's per-log handler. The
// authoritative document-mutation pipeline is the primary node's
// mutation stream (C1+C3); on-chain Log events observed here are
// liveness/observability signals for a database's bound contract, so the
// handler only logs them.
func onContractEvent(ctx context.Context, dbAddress string, log types.Log) error {
	logger.Debug("contract event observed",
		zap.String("db", dbAddress),
		zap.Uint64("block", log.BlockNumber),
		zap.String("tx", log.TxHash.Hex()),
	)
	return nil
}

// tryBuildRolloutClients builds the blob store the rollup batcher needs,
// or returns (nil, nil) if the node has no bucket configured yet. The
// contract client it returns is always nil (see below), so the batcher
// stays gated until Admin.UpdateSystemConfig supplies both clients — matching the spec's configuration gate ("if no
// system configuration has been persisted ... log a warning and return
// successfully").
func tryBuildRolloutClients(ctx context.Context, cfg *config.Config) (rollup.BlobStore, rollup.ContractClient) {
	if cfg.Blob.Bucket == "" {
		return nil, nil
	}
	blobStore, err := rollup.NewS3BlobStore(ctx, rollup.S3Config{
		Bucket:       cfg.Blob.Bucket,
		Prefix:       cfg.Blob.Prefix,
		Region:       cfg.Blob.Region,
		Endpoint:     cfg.Blob.Endpoint,
		UsePathStyle: cfg.Blob.UsePathStyle,
	})
	if err != nil {
		logger.Warn("blob store unavailable at startup, rollup gated until UpdateSystemConfig", zap.Error(err))
		return nil, nil
	}
	// The on-chain contract client needs the node's own signing key and
	// an EVM transactor, both of which require a live chain connection;
	// building it eagerly at startup is deferred to the admin's
	// UpdateSystemConfig call once the node's wallet and RPC endpoint are
	// confirmed reachable.
	return blobStore, nil
}
