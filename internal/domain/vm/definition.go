package vm

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
	return eventstore.AggregateVm
}

// Apply is the pure reducer used for replay.
func (Definition) Apply(state State, eventType string, decoded any, meta eventstore.Metadata) State {
	switch eventType {
	case EventProvisioningStarted:
		p := decoded.(*ProvisioningStartedPayload)
		state.TenantID = meta.TenantID
		state.RequestID = p.RequestID
		state.Name = p.Name
		state.Size = p.Size
		state.Status = StatusProvisioning
		state.Stage = StageCloning

	case EventProgressUpdated:
		p := decoded.(*ProgressUpdatedPayload)
		state.Stage = Stage(p.Stage)

	case EventProvisioned:
		p := decoded.(*ProvisionedPayload)
		state.VmwareVMID = p.VmwareVMID
		state.IPAddress = p.IPAddress
		state.Hostname = p.Hostname
		state.PowerState = p.PowerState
		state.GuestOS = p.GuestOS
		state.Status = StatusProvisioned
		state.Stage = StageReady

	case EventProvisioningFailed:
		p := decoded.(*ProvisioningFailedPayload)
		state.Reason = p.Reason
		state.Status = StatusFailed

	case EventStatusSynced:
		p := decoded.(*StatusSyncedPayload)
		state.PowerState = p.PowerState
		state.IPAddress = p.IPAddress
		state.Hostname = p.Hostname
		state.GuestOS = p.GuestOS
		observed := p.ObservedAt
		state.LastSyncedAt = &observed
	}
	return state
}

// Decide is the pure command handler used by aggregate.Runtime.Execute.
func (Definition) Decide(state State, version int64, cmd Command) ([]aggregate.DecidedEvent, error) {
	switch c := cmd.(type) {
	case StartProvisioning:
		return decideStartProvisioning(state, version, c)
	case ReportProgress:
		return decideReportProgress(state, c)
	case CompleteProvisioning:
		return decideCompleteProvisioning(state, c)
	case FailProvisioning:
		return decideFailProvisioning(state, c)
	case SyncStatus:
		return decideSyncStatus(state, c)
	default:
		return nil, apperrors.ErrValidation("command", fmt.Sprintf("unrecognized command %T", cmd))
	}
}

func decideStartProvisioning(state State, version int64, c StartProvisioning) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if version != 0 || state.exists() {
		return nil, apperrors.ErrInvalidState(string(state.Status), "vm already exists")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventProvisioningStarted,
		Payload:   ProvisioningStartedPayload{RequestID: c.RequestID, Name: c.Name, Size: c.Size},
	}}, nil
}

func decideReportProgress(state State, c ReportProgress) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusProvisioning {
		return nil, apperrors.ErrInvalidState(string(state.Status), "progress can only be reported while provisioning")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventProgressUpdated,
		Payload:   ProgressUpdatedPayload{Stage: c.Stage},
	}}, nil
}

func decideCompleteProvisioning(state State, c CompleteProvisioning) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusProvisioning {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only a provisioning vm can be completed")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventProvisioned,
		Payload: ProvisionedPayload{
			VmwareVMID: c.VmwareVMID,
			IPAddress:  c.IPAddress,
			Hostname:   c.Hostname,
			PowerState: c.PowerState,
			GuestOS:    c.GuestOS,
		},
	}}, nil
}

func decideFailProvisioning(state State, c FailProvisioning) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusProvisioning {
		return nil, apperrors.ErrInvalidState(string(state.Status), "only a provisioning vm can fail provisioning")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventProvisioningFailed,
		Payload:   ProvisioningFailedPayload{Reason: c.Reason},
	}}, nil
}

func decideSyncStatus(state State, c SyncStatus) ([]aggregate.DecidedEvent, error) {
	if err := validateCommand(c); err != nil {
		return nil, err
	}
	if state.Status != StatusProvisioned {
		return nil, apperrors.ErrInvalidState(string(state.Status), "status sync requires a provisioned vm")
	}
	return []aggregate.DecidedEvent{{
		EventType: EventStatusSynced,
		Payload: StatusSyncedPayload{
			PowerState: c.PowerState,
			IPAddress:  c.IPAddress,
			Hostname:   c.Hostname,
			GuestOS:    c.GuestOS,
			ObservedAt: c.ObservedAt,
		},
	}}, nil
}
