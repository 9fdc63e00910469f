package command

import (
	"context"

	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
)

// CancelRequestOutput is the result of a successful cancellation.
type CancelRequestOutput struct {
	RequestID string
	Version   int64
}

// CancelRequestHandler handles CancelRequest. Requester-only; the
// aggregate itself enforces actor_id == requester_id (vmrequest.Decide).
type CancelRequestHandler struct {
	runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]
}

// NewCancelRequestHandler constructs a CancelRequestHandler.
func NewCancelRequestHandler(runtime *aggregate.Runtime[vmrequest.State, vmrequest.Command]) *CancelRequestHandler {
	return &CancelRequestHandler{runtime: runtime}
}

// Execute cancels a pending VM request.
func (h *CancelRequestHandler) Execute(ctx context.Context, requestID string) (*CancelRequestOutput, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	version, err := h.runtime.Execute(ctx, requestID, vmrequest.CancelRequest{ActorID: scope.UserID})
	if err != nil {
		return nil, err
	}

	logger.Info("vm request cancelled",
		zap.String("request_id", requestID),
		zap.String("tenant_id", scope.TenantID),
		zap.String("cancelled_by", scope.UserID),
	)

	return &CancelRequestOutput{RequestID: requestID, Version: version}, nil
}
