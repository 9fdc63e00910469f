package projection

import (
	"context"
	"fmt"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmprojection"
	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/eventstore"
)

// VmProjectionSubscriber maintains the denormalized VMProjection read
// model from Vm aggregate events.
type VmProjectionSubscriber struct{}

// Name implements Subscriber.
func (VmProjectionSubscriber) Name() string { return "vm_projection" }

// Interested implements Subscriber.
func (VmProjectionSubscriber) Interested(eventType string) bool {
	switch eventType {
	case vm.EventProvisioningStarted, vm.EventProvisioned, vm.EventProvisioningFailed, vm.EventStatusSynced:
		return true
	default:
		return false
	}
}

// Apply implements Subscriber.
func (VmProjectionSubscriber) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	switch p := decoded.(type) {
	case *vm.ProvisioningStartedPayload:
		return tx.VMProjection.Create().
			SetID(event.AggregateID).
			SetTenantID(event.Metadata.TenantID).
			SetRequestID(p.RequestID).
			SetStatus(vmprojection.StatusPROVISIONING).
			SetVersion(event.Version).
			OnConflictColumns(vmprojection.FieldID).
			Ignore().
			Exec(ctx)

	case *vm.ProvisionedPayload:
		return updateVmIfNewer(ctx, tx, event,
			tx.VMProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmprojection.StatusPROVISIONED).
				SetVmwareVMID(p.VmwareVMID).
				SetIPAddress(p.IPAddress).
				SetHostname(p.Hostname).
				SetPowerState(p.PowerState).
				SetGuestOS(p.GuestOS).
				SetVersion(event.Version))

	case *vm.ProvisioningFailedPayload:
		return updateVmIfNewer(ctx, tx, event,
			tx.VMProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmprojection.StatusFAILED).
				SetVersion(event.Version))

	case *vm.StatusSyncedPayload:
		return updateVmIfNewer(ctx, tx, event,
			tx.VMProjection.UpdateOneID(event.AggregateID).
				SetPowerState(p.PowerState).
				SetIPAddress(p.IPAddress).
				SetHostname(p.Hostname).
				SetGuestOS(p.GuestOS).
				SetLastSyncedAt(p.ObservedAt).
				SetVersion(event.Version))

	default:
		return fmt.Errorf("vm projection: unexpected payload type %T for event %q", decoded, event.EventType)
	}
}

func updateVmIfNewer(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, upd *ent.VMProjectionUpdateOne) error {
	_, err := upd.Where(vmprojection.VersionLT(event.Version)).Save(ctx)
	if err != nil && ent.IsNotFound(err) {
		return nil
	}
	return err
}
