package orchestrator

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmprojection"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/pkg/worker"
)

// DefaultStallThreshold is the default time a request may sit in
// PROVISIONING without progress before the stall detector re-drives it.
// Operational policy, not a correctness requirement: the spec only
// recommends resumability, so this is a safety net for orchestrator
// crashes/restarts, not a guarantee against duplicate hypervisor work.
const DefaultStallThreshold = 15 * time.Minute

const stallCheckInterval = time.Minute

// StallDetector periodically scans for requests stuck in PROVISIONING and
// re-enqueues a resume job for each one. Grounded on the teacher's
// runClusterHealthLoop/refreshClusterHealth pair in internal/app/lifecycle.go.
type StallDetector struct {
	Ent       *ent.Client
	River     *river.Client[pgx.Tx]
	Pools     *worker.Pools
	Threshold time.Duration
}

// Start submits the detector's scan loop onto the provisioning pool as a
// detached task, so it survives request cancellation but stops on
// graceful shutdown along with everything else in that pool.
func (d *StallDetector) Start(ctx context.Context) error {
	threshold := d.Threshold
	if threshold <= 0 {
		threshold = DefaultStallThreshold
	}

	return d.Pools.SubmitDetached("provisioning", func(loopCtx context.Context) {
		ticker := time.NewTicker(stallCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := d.reconcile(loopCtx, threshold); err != nil {
					logger.Warn("stall detector reconcile failed", zap.Error(err))
				}
			}
		}
	})
}

func (d *StallDetector) reconcile(ctx context.Context, threshold time.Duration) error {
	cutoff := time.Now().Add(-threshold)

	stalled, err := d.Ent.VMRequestProjection.Query().
		Where(
			vmrequestprojection.StatusEQ(vmrequestprojection.StatusPROVISIONING),
			vmrequestprojection.UpdatedAtLT(cutoff),
		).
		All(ctx)
	if err != nil {
		return err
	}

	for _, req := range stalled {
		vmRow, err := d.Ent.VMProjection.Query().
			Where(vmprojection.RequestIDEQ(req.ID)).
			Only(ctx)
		if err != nil {
			logger.Warn("stalled request has no vm projection, cannot resume",
				zap.String("request_id", req.ID),
				zap.Error(err),
			)
			continue
		}

		if vmRow.Status != vmprojection.StatusPROVISIONING {
			// Already reached a terminal state; the projection just hasn't
			// caught up to mark the request itself terminal yet.
			continue
		}

		_, err = d.River.Insert(ctx, ProvisionVMArgs{
			VmRequestID: req.ID,
			TenantID:    req.TenantID,
			ResumeVmID:  vmRow.ID,
		}, nil)
		if err != nil {
			logger.Warn("failed to enqueue stall resume job",
				zap.String("request_id", req.ID),
				zap.String("vm_id", vmRow.ID),
				zap.Error(err),
			)
			continue
		}

		logger.Info("re-enqueued stalled provisioning request",
			zap.String("request_id", req.ID),
			zap.String("vm_id", vmRow.ID),
			zap.Duration("stalled_for", time.Since(req.UpdatedAt)),
		)
	}

	return nil
}
