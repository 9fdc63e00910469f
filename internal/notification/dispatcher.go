package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/projection"
)

// Dispatcher is the notification dispatcher (C11): a projection subscriber
// that maps VmRequest lifecycle events to notification sends. It never
// writes projection state of its own — Apply only reads the VMRequestProjection
// row (built by the sibling projection subscriber) to resolve the
// recipient, then hands off to Sender.
//
// Send failures are logged and swallowed rather than returned: returning
// an error here would feed the engine's retry-then-poison path, which
// exists to protect write correctness, not to guarantee delivery of a
// best-effort notification.
type Dispatcher struct {
	sender Sender
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(sender Sender) *Dispatcher {
	return &Dispatcher{sender: sender}
}

// Name implements projection.Subscriber.
func (*Dispatcher) Name() string { return "notification_dispatcher" }

// Interested implements projection.Subscriber.
func (*Dispatcher) Interested(eventType string) bool {
	switch eventType {
	case vmrequest.EventApproved, vmrequest.EventRejected,
		vmrequest.EventReady, vmrequest.EventFailed:
		return true
	default:
		return false
	}
}

// Apply implements projection.Subscriber.
func (d *Dispatcher) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	row, err := tx.VMRequestProjection.Query().
		Where(vmrequestprojection.IDEQ(event.AggregateID)).
		Only(ctx)
	if err != nil {
		logger.Warn("notification dispatcher: request projection not available yet, dropping notification",
			zap.String("request_id", event.AggregateID),
			zap.String("event_type", event.EventType),
			zap.Error(err),
		)
		return nil
	}

	params, ok := d.toParams(event, decoded, row)
	if !ok {
		return fmt.Errorf("notification dispatcher: unexpected payload type %T for event %q", decoded, event.EventType)
	}

	if err := d.sender.Send(ctx, params); err != nil {
		logger.Error("notification send failed",
			zap.String("request_id", event.AggregateID),
			zap.String("type", params.Type),
			zap.Error(err),
		)
	}
	return nil
}

func (d *Dispatcher) toParams(event eventstore.StoredEvent, decoded any, row *ent.VMRequestProjection) (Params, bool) {
	base := Params{
		TenantID:     row.TenantID,
		RecipientID:  row.RequesterID,
		ResourceType: "vm_request",
		ResourceID:   row.ID,
	}

	switch p := decoded.(type) {
	case *vmrequest.ApprovedPayload:
		base.Type = TypeRequestApproved
		base.Title = "Your VM request has been approved"
		base.Message = fmt.Sprintf("Request for %s in project %s was approved by %s", row.VmName, row.ProjectName, p.DecidedBy)
		return base, true

	case *vmrequest.RejectedPayload:
		base.Type = TypeRequestRejected
		base.Title = "Your VM request has been rejected"
		msg := fmt.Sprintf("Request for %s in project %s was rejected by %s", row.VmName, row.ProjectName, p.DecidedBy)
		if p.RejectionReason != "" {
			msg += fmt.Sprintf(": %s", p.RejectionReason)
		}
		base.Message = msg
		return base, true

	case *vmrequest.ReadyPayload:
		base.Type = TypeRequestReady
		base.Title = fmt.Sprintf("VM %s is ready", row.VmName)
		base.Message = fmt.Sprintf("%s is provisioned and reachable at %s (%s)", row.VmName, p.Hostname, p.IPAddress)
		return base, true

	case *vmrequest.FailedPayload:
		base.Type = TypeRequestFailed
		base.Title = fmt.Sprintf("VM request for %s failed", row.VmName)
		base.Message = fmt.Sprintf("Provisioning failed: %s", p.Reason)
		return base, true

	default:
		return Params{}, false
	}
}

var _ projection.Subscriber = (*Dispatcher)(nil)
