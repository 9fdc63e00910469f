package vmrequest

import (
	"fmt"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/eventstore"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

// Definition implements aggregate.Definition[State, Command].
type Definition struct{}

var _ aggregate.Definition[State, Command] = Definition{}

func (Definition) Empty() State { return State{} }

func (Definition) AggregateType() eventstore.AggregateType {
	return eventstore.AggregateVmRequest
}

// Apply is the pure reducer used for replay.
func (Definition) Apply(state State, eventType string, decoded any, meta eventstore.Metadata) State {
	switch eventType {
	case EventCreated:
		p := decoded.(*CreatedPayload)
		state.TenantID = meta.TenantID
		state.ProjectID = p.ProjectID
		state.ProjectName = p.ProjectName
		state.RequesterID = p.RequesterID
		state.RequesterEmail = p.RequesterEmail
		state.VmName = p.VmName
		state.Size = Size(p.Size)
		state.Justification = p.Justification
		state.Status = StatusPending

	case EventApproved:
		p := decoded.(*ApprovedPayload)
		state.DecidedBy = p.DecidedBy
		occurred := meta.OccurredAt
		state.DecidedAt = &occurred
		state.Status = StatusApproved

	case EventRejected:
		p := decoded.(*RejectedPayload)
		state.DecidedBy = p.DecidedBy
		state.Reason = p.RejectionReason
		occurred := meta.OccurredAt
		state.DecidedAt = &occurred
		state.Status = StatusRejected

	case EventCancelled:
		occurred := meta.OccurredAt
		state.CancelledAt = &occurred
		state.Status = StatusCancelled

	case EventProvisioningStarted:
		state.Status = StatusProvisioning

	case EventReady:
		p := decoded.(*ReadyPayload)
		state.VmwareVMID = p.VmwareVMID
		state.IPAddress = p.IPAddress
		state.Hostname = p.Hostname
		state.Status = StatusReady

	case EventFailed:
		p := decoded.(*FailedPayload)
		state.Reason = p.Reason
		state.Status = StatusFailed
	}
	return state
}

// Decide is the pure command handler used by aggregate.Runtime.Execute.
func (Definition) Decide(state State, version int64, cmd Command) ([]aggregate.DecidedEvent, error) {
	switch c := cmd.(type) {
	case CreateVmRequest:
		return decideCreate(state, version, c)
	case ApproveRequest:
		return decideApprove(state, c)
	case RejectRequest:
		return decideReject(state, c)
	case CancelRequest:
		return decideCancel(state, c)
	case MarkProvisioning:
		return decideMarkProvisioning(state)
	case MarkReady:
		return decideMarkReady(state, c)
	case MarkFailed:
		return decideMarkFailed(state, c)
	default:
		return nil, apperrors.ErrValidation("command", fmt.Sprintf("unrecognized command %T", cmd))
	}
}

func decideCreate(state State, version int64, c CreateVmRequest) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if version != 0 || state.exists() {
		return nil, apperrors.ErrInvalidState(string(state.Status), "vm request already exists")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventCreated,
		Payload: CreatedPayload{
			ProjectID:      c.ProjectID,
			ProjectName:    c.ProjectName,
			RequesterID:    c.RequesterID,
			RequesterEmail: c.RequesterEmail,
			VmName:         c.VmName,
			Size:           c.Size,
			Justification:  c.Justification,
		},
	}}, nil
}

func decideApprove(state State, c ApproveRequest) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusPending {
		return nil, apperrors.ErrInvalidState(string(state.Status), "request is not pending approval")
	}
	if c.ActorID == state.RequesterID {
		return nil, apperrors.ErrSelfApproval()
	}
	return []aggregate.DecidedEvent{{
		EventType: EventApproved,
		Payload:   ApprovedPayload{DecidedBy: c.ActorID},
	}}, nil
}

func decideReject(state State, c RejectRequest) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusPending {
		return nil, apperrors.ErrInvalidState(string(state.Status), "request is not pending approval")
	}
	if c.ActorID == state.RequesterID {
		return nil, apperrors.ErrSelfApproval()
	}
	return []aggregate.DecidedEvent{{
		EventType: EventRejected,
		Payload:   RejectedPayload{DecidedBy: c.ActorID, RejectionReason: c.Reason},
	}}, nil
}

func decideCancel(state State, c CancelRequest) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusPending {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only a pending request can be cancelled")
	}
	if c.ActorID != state.RequesterID {
		return nil, apperrors.ErrCancelRequiresRequester()
	}
	return []aggregate.DecidedEvent{{
		EventType: EventCancelled,
		Payload:   CancelledPayload{},
	}}, nil
}

func decideMarkProvisioning(state State) ([]aggregate.DecidedEvent, error) {
	if state.Status != StatusApproved {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only an approved request can start provisioning")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventProvisioningStarted,
		Payload:   ProvisioningStartedPayload{},
	}}, nil
}

func decideMarkReady(state State, c MarkReady) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusProvisioning {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only a provisioning request can be marked ready")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventReady,
		Payload: ReadyPayload{
			VmwareVMID: c.VmwareVMID,
			IPAddress:  c.IPAddress,
			Hostname:   c.Hostname,
		},
	}}, nil
}

func decideMarkFailed(state State, c MarkFailed) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusApproved && state.Status != StatusProvisioning {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only an approved or provisioning request can be marked failed")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventFailed,
		Payload:   FailedPayload{Reason: c.Reason},
	}}, nil
}
