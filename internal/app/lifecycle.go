package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/internal/pkg/logger"
)

// Start starts every background component: the River client (consuming
// provisioning jobs), the projection engine (one goroutine per
// subscriber), and the stall detector's reconciliation loop.
func (a *Application) Start(ctx context.Context) error {
	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Start(ctx); err != nil {
			return fmt.Errorf("start river client: %w", err)
		}
		logger.Info("river client started, provisioning jobs will now be consumed")
	}

	if a.Projection != nil {
		go a.Projection.Run(ctx) //nolint:naked-goroutine // dedicated background lifecycle loop, bounded by ctx.
		logger.Info("projection engine started")
	}

	if a.Stall != nil {
		if err := a.Stall.Start(ctx); err != nil {
			return fmt.Errorf("start stall detector: %w", err)
		}
		logger.Info("stall detector started")
	}

	return nil
}

// Shutdown stops the River client, then shuts down the worker pools (which
// also ends the stall detector's loop), then closes the database clients.
// The projection engine is not stopped here; its goroutines end when the
// ctx passed to Start is cancelled.
func (a *Application) Shutdown() {
	shutdownCtx := context.Background()

	if a.DB != nil && a.DB.RiverClient != nil {
		if err := a.DB.RiverClient.Stop(shutdownCtx); err != nil {
			logger.Error("failed to stop river client", zap.Error(err))
		}
		logger.Info("river client stopped")
	}

	if a.Pools != nil {
		a.Pools.Shutdown()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
