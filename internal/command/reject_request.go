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

// RejectRequestOutput is the result of a successful rejection.
type RejectRequestOutput struct {
	RequestID string
	Version   int64
}

// RejectRequestHandler handles RejectRequest. Admin-only.
type RejectRequestHandler struct {
	runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]
}

// NewRejectRequestHandler constructs a RejectRequestHandler.
func NewRejectRequestHandler(runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]) *RejectRequestHandler {
	return &RejectRequestHandler{runtime: runtime}
}

// Execute rejects a pending VM request with a reason.
func (h *RejectRequestHandler) Execute(ctx context.Context, requestID, reason string) (*RejectRequestOutput, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}
	if !scope.IsAdmin() {
		return nil, apperrors.ErrAdminRequired()
	}

	version, err := h.runtime.Execute(ctx, requestID, vmrequest.RejectRequest{ActorID: scope.UserID, Reason: reason})
	if err != nil {
		return nil, err
	}

	logger.Info("vm request rejected",
		zap.String("request_id", requestID),
		zap.String("tenant_id", scope.TenantID),
		zap.String("rejected_by", scope.UserID),
	)

	return &RejectRequestOutput{RequestID: requestID, Version: version}, nil
}
