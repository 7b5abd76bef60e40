package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"chainstore.io/node/internal/pkg/logger"
)

// Start starts the River client and the Block Sync Engine's run loop.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("River client started, rollup ticks will now be consumed")
	}

	go a.runEngine() //nolint:naked-goroutine // dedicated background lifecycle loop.
	logger.Info("Block Sync Engine started")

	return nil
}

// runEngine drives the engine's full lifecycle until Shutdown cancels it.
// A failure here is logged rather than propagated: the engine resubscribes
// on transient chain errors on its own, so only Run returning at all
// (context cancellation, or an unrecoverable startup error) ends the loop.
func (a *Application) runEngine() {
	if err := a.Engine.Run(a.engineCtx); err != nil {
		logger.Error("engine run loop exited", zap.Error(err))
	}
}

// Shutdown gracefully shuts down all application components.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	a.engineCancel()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("River client stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
