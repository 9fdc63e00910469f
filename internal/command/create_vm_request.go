// Package command implements the command handler layer (C7): thin
// handlers that assert tenant context, authorize, execute through the
// aggregate runtime, and return a taxonomized error on failure. No
// handler talks to the store directly — internal/aggregate.Runtime does.
package command

import (
	"context"

	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
)

// CreateVmRequestInput is the external request to submit a new VM request.
// RequestID is an optional caller-supplied idempotency key; if empty, a
// fresh one is generated.
type CreateVmRequestInput struct {
	RequestID      string
	ProjectID      string
	ProjectName    string
	RequesterEmail string
	VmName         string
	Size           string
	Justification  string
}

// CreateVmRequestOutput is the result of a successful (or idempotently
// replayed) submission.
type CreateVmRequestOutput struct {
	RequestID string
	Version   int64
}

// CreateVmRequestHandler handles CreateVmRequest.
type CreateVmRequestHandler struct {
	runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]
}

// NewCreateVmRequestHandler constructs a CreateVmRequestHandler.
func NewCreateVmRequestHandler(runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]) *CreateVmRequestHandler {
	return &CreateVmRequestHandler{runtime: runtime}
}

// Execute submits a new VM request. Resubmission with the same RequestID
// and an identical payload is a no-op; resubmission with a different
// payload fails as a concurrency conflict.
func (h *CreateVmRequestHandler) Execute(ctx context.Context, input CreateVmRequestInput) (*CreateVmRequestOutput, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	id := input.RequestID
	if id == "" {
		id = generateID()
	}

	existing, version, err := h.runtime.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != "" {
		if !sameCreatePayload(existing, scope.UserID, input) {
			return nil, apperrors.ErrIdempotencyConflict(id)
		}
		return &CreateVmRequestOutput{RequestID: id, Version: version}, nil
	}

	cmd := vmrequest.CreateVmRequest{
		ProjectID:      input.ProjectID,
		ProjectName:    input.ProjectName,
		RequesterID:    scope.UserID,
		RequesterEmail: input.RequesterEmail,
		VmName:         input.VmName,
		Size:           input.Size,
		Justification:  input.Justification,
	}

	newVersion, err := h.runtime.Execute(ctx, id, cmd)
	if err != nil {
		return nil, err
	}

	logger.Info("vm request created",
		zap.String("request_id", id),
		zap.String("tenant_id", scope.TenantID),
		zap.String("requester_id", scope.UserID),
		zap.String("vm_name", input.VmName),
	)

	return &CreateVmRequestOutput{RequestID: id, Version: newVersion}, nil
}

func sameCreatePayload(existing vmrequest.State, requesterID string, input CreateVmRequestInput) bool {
	return existing.RequesterID == requesterID &&
		existing.ProjectID == input.ProjectID &&
		existing.ProjectName == input.ProjectName &&
		existing.VmName == input.VmName &&
		string(existing.Size) == input.Size &&
		existing.Justification == input.Justification
}
