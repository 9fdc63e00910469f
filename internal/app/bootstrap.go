// Package app is the composition root: it wires the event store, codec
// registry, aggregate runtimes, command/query handlers, projection
// engine, and provisioning orchestrator into one running service.
// Bootstrap stays orchestration-only — no business logic lives here.
package app

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/command"
	"vcenterprovision.io/controlplane/internal/config"
	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/hypervisor"
	"vcenterprovision.io/controlplane/internal/hypervisor/govmomi"
	"vcenterprovision.io/controlplane/internal/infrastructure"
	"vcenterprovision.io/controlplane/internal/notification"
	"vcenterprovision.io/controlplane/internal/orchestrator"
	"vcenterprovision.io/controlplane/internal/pkg/worker"
	"vcenterprovision.io/controlplane/internal/projection"
	"vcenterprovision.io/controlplane/internal/query"
	"vcenterprovision.io/controlplane/internal/query/repository"
)

// Commands groups the four command handlers (C7).
type Commands struct {
	CreateVmRequest *command.CreateVmRequestHandler
	ApproveRequest  *command.ApproveRequestHandler
	RejectRequest   *command.RejectRequestHandler
	CancelRequest   *command.CancelRequestHandler
}

// Queries groups the four query handlers (C12).
type Queries struct {
	ListMyRequests   *query.ListMyRequestsHandler
	ListPending      *query.ListPendingHandler
	GetRequestDetail *query.GetRequestDetailHandler
	ListProjects     *query.ListProjectsHandler
}

// Application holds every composed dependency the running service needs.
type Application struct {
	Config *config.Config
	DB     *infrastructure.DatabaseClients
	Pools  *worker.Pools

	Commands Commands
	Queries  Queries

	Projection *projection.Engine
	Stall      *orchestrator.StallDetector
}

// Bootstrap wires every component from SPEC_FULL.md into one Application.
func Bootstrap(ctx context.Context, cfg *config.Config) (*Application, error) {
	db, err := infrastructure.NewDatabaseClients(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}

	pools, err := worker.NewPools(ctx, worker.PoolConfig{
		GeneralPoolSize:      cfg.Worker.GeneralPoolSize,
		ProvisioningPoolSize: cfg.Worker.ProvisioningPoolSize,
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init worker pools: %w", err)
	}

	registry := buildCodecRegistry()

	aggCfg := aggregate.DefaultConfig()
	aggCfg.SnapshotThreshold = int64(cfg.EventStore.SnapshotThreshold)
	if cfg.EventStore.RetryBound > 0 {
		aggCfg.MaxRetries = cfg.EventStore.RetryBound
	}
	requestRuntime := aggregate.NewRuntime[vmrequest.State, vmrequest.Command](db.EventStore, registry, vmrequest.Definition{}, aggCfg)
	vmRuntime := aggregate.NewRuntime[vm.State, vm.Command](db.EventStore, registry, vm.Definition{}, aggCfg)

	commands := Commands{
		CreateVmRequest: command.NewCreateVmRequestHandler(requestRuntime),
		ApproveRequest:  command.NewApproveRequestHandler(requestRuntime),
		RejectRequest:   command.NewRejectRequestHandler(requestRuntime),
		CancelRequest:   command.NewCancelRequestHandler(requestRuntime),
	}

	repo := repository.NewVmRequestRepository(db.EntClient)
	queries := Queries{
		ListMyRequests:   query.NewListMyRequestsHandler(repo),
		ListPending:      query.NewListPendingHandler(repo),
		GetRequestDetail: query.NewGetRequestDetailHandler(repo),
		ListProjects:     query.NewListProjectsHandler(repo),
	}

	hv := govmomi.New()
	cipher := hypervisor.PassthroughCipher{}
	provisionWorker := orchestrator.NewWorker(db.EntClient, vmRuntime, requestRuntime, hv, cipher, newVmID)

	workers := river.NewWorkers()
	river.AddWorker(workers, provisionWorker)
	if err := db.InitRiverClient(workers, cfg.River); err != nil {
		pools.Shutdown()
		db.Close()
		return nil, fmt.Errorf("init river client: %w", err)
	}

	sender := notification.Sender(notification.NoopSender{})
	if db.EntClient != nil {
		sender = notification.NewInboxSender(db.EntClient)
	}

	engine := projection.New(db.EventStore, registry, db.EntClient, projection.DefaultConfig(),
		projection.VmRequestProjectionSubscriber{},
		projection.VmProjectionSubscriber{},
		projection.TimelineSubscriber{},
		projection.ProvisioningProgressSubscriber{},
		orchestrator.TriggerSubscriber{River: db.RiverClient},
		notification.NewDispatcher(sender),
	)

	stall := &orchestrator.StallDetector{
		Ent:       db.EntClient,
		River:     db.RiverClient,
		Pools:     pools,
		Threshold: cfg.Orchestrator.StallThreshold,
	}

	return &Application{
		Config:     cfg,
		DB:         db,
		Pools:      pools,
		Commands:   commands,
		Queries:    queries,
		Projection: engine,
		Stall:      stall,
	}, nil
}

func buildCodecRegistry() *codec.Registry {
	registry := codec.NewRegistry()

	codec.Register[vmrequest.CreatedPayload](registry, vmrequest.EventCreated)
	codec.Register[vmrequest.ApprovedPayload](registry, vmrequest.EventApproved)
	codec.Register[vmrequest.RejectedPayload](registry, vmrequest.EventRejected)
	codec.Register[vmrequest.CancelledPayload](registry, vmrequest.EventCancelled)
	codec.Register[vmrequest.ProvisioningStartedPayload](registry, vmrequest.EventProvisioningStarted)
	codec.Register[vmrequest.ReadyPayload](registry, vmrequest.EventReady)
	codec.Register[vmrequest.FailedPayload](registry, vmrequest.EventFailed)
	codec.Register[vmrequest.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVmRequest))

	codec.Register[vm.ProvisioningStartedPayload](registry, vm.EventProvisioningStarted)
	codec.Register[vm.ProgressUpdatedPayload](registry, vm.EventProgressUpdated)
	codec.Register[vm.ProvisionedPayload](registry, vm.EventProvisioned)
	codec.Register[vm.ProvisioningFailedPayload](registry, vm.EventProvisioningFailed)
	codec.Register[vm.StatusSyncedPayload](registry, vm.EventStatusSynced)
	codec.Register[vm.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVm))

	return registry
}

// newVmID mints a time-ordered, K-sortable UUIDv7 for a new Vm aggregate,
// falling back to v4 on the (practically never) error path. Same scheme
// as internal/command's own generateID.
func newVmID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.New().String()
	}
	return id.String()
}
