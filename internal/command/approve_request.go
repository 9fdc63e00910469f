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

// ApproveRequestOutput is the result of a successful approval.
type ApproveRequestOutput struct {
	RequestID string
	Version   int64
}

// ApproveRequestHandler handles ApproveRequest. Admin-only.
type ApproveRequestHandler struct {
	runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]
}

// NewApproveRequestHandler constructs an ApproveRequestHandler.
func NewApproveRequestHandler(runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]) *ApproveRequestHandler {
	return &ApproveRequestHandler{runtime: runtime}
}

// Execute approves a pending VM request. Self-approval is rejected by the
// aggregate itself (vmrequest.Decide); this handler only enforces the
// admin role requirement, which the domain has no way to know about.
func (h *ApproveRequestHandler) Execute(ctx context.Context, requestID string) (*ApproveRequestOutput, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !scope.IsAdmin() {
		return nil, apperrors.ErrAdminRequired()
	}

	version, err := h.runtime.Execute(ctx, requestID, vmrequest.ApproveRequest{ActorID: scope.UserID})
	if err != nil {
		return nil, err
	}

	logger.Info("vm request approved",
		zap.String("request_id", requestID),
		zap.String("tenant_id", scope.TenantID),
		zap.String("approved_by", scope.UserID),
	)

	return &ApproveRequestOutput{RequestID: requestID, Version: version}, nil
}
