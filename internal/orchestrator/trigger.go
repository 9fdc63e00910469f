package orchestrator

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
)

// TriggerSubscriber enqueues a ProvisionVMArgs job for every approved
// request. It is a projection.Subscriber purely to get a durable,
// at-least-once cursor over VmRequestApproved — it writes nothing to Ent
// itself, so Apply ignores the transaction it is handed.
type TriggerSubscriber struct {
	River *river.Client[pgx.Tx]
}

// Name implements projection.Subscriber.
func (TriggerSubscriber) Name() string { return "orchestrator_trigger" }

// Interested implements projection.Subscriber.
func (TriggerSubscriber) Interested(eventType string) bool {
	return eventType == vmrequest.EventApproved
}

// Apply implements projection.Subscriber.
func (s TriggerSubscriber) Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error {
	_, err := s.River.Insert(ctx, ProvisionVMArgs{
		VmRequestID: event.AggregateID,
		TenantID:    event.Metadata.TenantID,
	}, nil)
	if err != nil {
		return err
	}
	logger.Info("provisioning job enqueued",
		zap.String("request_id", event.AggregateID),
		zap.String("tenant_id", event.Metadata.TenantID),
	)
	return nil
}
