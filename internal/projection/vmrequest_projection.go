package projection

import (
	"context"
	"fmt"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
)

// VmRequestProjectionSubscriber maintains the denormalized VMRequestProjection
// read model from VmRequest lifecycle events.
type VmRequestProjectionSubscriber struct{}

// Name implements Subscriber.
func (VmRequestProjectionSubscriber) Name() string { return "vmrequest_projection" }

// Interested implements Subscriber.
func (VmRequestProjectionSubscriber) Interested(eventType string) bool {
	switch eventType {
	case vmrequest.EventCreated, vmrequest.EventApproved, vmrequest.EventRejected,
		vmrequest.EventCancelled, vmrequest.EventProvisioningStarted,
		vmrequest.EventReady, vmrequest.EventFailed:
		return true
	default:
		return false
	}
}

// Apply implements Subscriber.
func (VmRequestProjectionSubscriber) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	switch p := decoded.(type) {
	case *vmrequest.CreatedPayload:
		return tx.VMRequestProjection.Create().
			SetID(event.AggregateID).
			SetTenantID(event.Metadata.TenantID).
			SetProjectID(p.ProjectID).
			SetProjectName(p.ProjectName).
			SetRequesterID(p.RequesterID).
			SetRequesterEmail(p.RequesterEmail).
			SetVmName(p.VmName).
			SetSize(vmrequestprojection.Size(p.Size)).
			SetJustification(p.Justification).
			SetStatus(vmrequestprojection.StatusPENDING).
			SetVersion(event.Version).
			OnConflictColumns(vmrequestprojection.FieldID).
			Ignore().
			Exec(ctx)

	case *vmrequest.ApprovedPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusAPPROVED).
				SetDecidedBy(p.DecidedBy).
				SetDecidedAt(event.Metadata.OccurredAt).
				SetVersion(event.Version))

	case *vmrequest.RejectedPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusREJECTED).
				SetDecidedBy(p.DecidedBy).
				SetDecidedAt(event.Metadata.OccurredAt).
				SetRejectionReason(p.RejectionReason).
				SetVersion(event.Version))

	case *vmrequest.CancelledPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusCANCELLED).
				SetCancelledAt(event.Metadata.OccurredAt).
				SetVersion(event.Version))

	case *vmrequest.ProvisioningStartedPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusPROVISIONING).
				SetVersion(event.Version))

	case *vmrequest.ReadyPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusREADY).
				SetVmwareVMID(p.VmwareVMID).
				SetIPAddress(p.IPAddress).
				SetHostname(p.Hostname).
				SetVersion(event.Version))

	case *vmrequest.FailedPayload:
		return updateIfNewer(ctx, tx, event,
			tx.VMRequestProjection.UpdateOneID(event.AggregateID).
				SetStatus(vmrequestprojection.StatusFAILED).
				SetRejectionReason(p.Reason).
				SetVersion(event.Version))

	default:
		return fmt.Errorf("vmrequest projection: unexpected payload type %T for event %q", decoded, event.EventType)
	}
}

// updateIfNewer guards against replaying an event whose version has
// already been reflected in the projection row, so at-least-once delivery
// never regresses state applied by a later event.
func updateIfNewer(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, upd *ent.VMRequestProjectionUpdateOne) error {
	_, err := upd.Where(vmrequestprojection.VersionLT(event.Version)).Save(ctx)
	if err != nil && ent.IsNotFound(err) {
		return nil
	}
	return err
}
