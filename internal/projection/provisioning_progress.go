package projection

import (
	"context"
	"fmt"
	"time"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmprovisioningprogress"
	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/eventstore"
)

// ProvisioningProgressSubscriber maintains VMProvisioningProgress, a
// mutable row that exists only while a Vm is mid-provisioning: created on
// VmProvisioningStarted, updated on every VmProvisioningProgressUpdated,
// and deleted on VmProvisioned or VmProvisioningFailed.
type ProvisioningProgressSubscriber struct{}

// Name implements Subscriber.
func (ProvisioningProgressSubscriber) Name() string { return "provisioning_progress" }

// Interested implements Subscriber.
func (ProvisioningProgressSubscriber) Interested(eventType string) bool {
	switch eventType {
	case vm.EventProvisioningStarted, vm.EventProgressUpdated, vm.EventProvisioned, vm.EventProvisioningFailed:
		return true
	default:
		return false
	}
}

// Apply implements Subscriber.
func (ProvisioningProgressSubscriber) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	switch p := decoded.(type) {
	case *vm.ProvisioningStartedPayload:
		stamp := map[string]string{string(vm.StageCloning): event.Metadata.OccurredAt.Format(time.RFC3339)}
		return tx.VMProvisioningProgress.Create().
			SetTenantID(event.Metadata.TenantID).
			SetRequestID(p.RequestID).
			SetVmID(event.AggregateID).
			SetStage(string(vm.StageCloning)).
			SetStageTimestamps(stamp).
			SetEstimatedRemainingSeconds(vm.EstimatedRemainingSeconds(vm.StageCloning)).
			OnConflictColumns(vmprovisioningprogress.FieldVmID).
			Ignore().
			Exec(ctx)

	case *vm.ProgressUpdatedPayload:
		row, err := tx.VMProvisioningProgress.Query().
			Where(vmprovisioningprogress.VmIDEQ(event.AggregateID)).
			Only(ctx)
		if ent.IsNotFound(err) {
			// Progress row already removed (Ready/Failed raced ahead of
			// an out-of-order redelivery); nothing to update.
			return nil
		}
		if err != nil {
			return err
		}

		stage := vm.Stage(p.Stage)
		timestamps := row.StageTimestamps
		if timestamps == nil {
			timestamps = make(map[string]string)
		}
		timestamps[p.Stage] = event.Metadata.OccurredAt.Format(time.RFC3339)

		return tx.VMProvisioningProgress.UpdateOne(row).
			SetStage(p.Stage).
			SetStageTimestamps(timestamps).
			SetEstimatedRemainingSeconds(vm.EstimatedRemainingSeconds(stage)).
			Exec(ctx)

	case *vm.ProvisionedPayload:
		_, err := tx.VMProvisioningProgress.Delete().
			Where(vmprovisioningprogress.VmIDEQ(event.AggregateID)).
			Exec(ctx)
		return err

	case *vm.ProvisioningFailedPayload:
		_, err := tx.VMProvisioningProgress.Delete().
			Where(vmprovisioningprogress.VmIDEQ(event.AggregateID)).
			Exec(ctx)
		return err

	default:
		return fmt.Errorf("provisioning progress: unexpected payload type %T for event %q", decoded, event.EventType)
	}
}
