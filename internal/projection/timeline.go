package projection

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/requesttimeline"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
)

// TimelineSubscriber appends one RequestTimeline row per VmRequest
// lifecycle event, for audit/history display.
type TimelineSubscriber struct{}

// Name implements Subscriber.
func (TimelineSubscriber) Name() string { return "request_timeline" }

// Interested implements Subscriber.
func (TimelineSubscriber) Interested(eventType string) bool {
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
func (TimelineSubscriber) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	actor, details, err := describe(event.EventType, decoded)
	if err != nil {
		return err
	}

	return tx.RequestTimeline.Create().
		SetID(uuid.NewString()).
		SetTenantID(event.Metadata.TenantID).
		SetEventID(event.EventID).
		SetRequestID(event.AggregateID).
		SetEventType(event.EventType).
		SetActorName(actor).
		SetDetails(details).
		SetOccurredAt(event.Metadata.OccurredAt).
		OnConflictColumns(requesttimeline.FieldEventID).
		Ignore().
		Exec(ctx)
}

func describe(eventType string, decoded any) (actor, details string, err error) {
	switch p := decoded.(type) {
	case *vmrequest.CreatedPayload:
		return p.RequesterID, fmt.Sprintf("submitted request for %s (%s)", p.VmName, p.Size), nil
	case *vmrequest.ApprovedPayload:
		return p.DecidedBy, "approved the request", nil
	case *vmrequest.RejectedPayload:
		return p.DecidedBy, fmt.Sprintf("rejected the request: %s", p.RejectionReason), nil
	case *vmrequest.CancelledPayload:
		return "", "the requester cancelled the request", nil
	case *vmrequest.ProvisioningStartedPayload:
		return "", "provisioning started", nil
	case *vmrequest.ReadyPayload:
		return "", fmt.Sprintf("vm ready at %s", p.IPAddress), nil
	case *vmrequest.FailedPayload:
		return "", fmt.Sprintf("provisioning failed: %s", p.Reason), nil
	default:
		return "", "", fmt.Errorf("timeline: unexpected payload type %T for event %q", decoded, eventType)
	}
}
