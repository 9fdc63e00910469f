package command

import (
	"context"
	"sync"
	"testing"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
)

func init() {
	_ = logger.Init("error", "json")
}

// fakeStore is a minimal in-memory eventstore.Store for handler tests.
type fakeStore struct {
	mu     sync.Mutex
	events map[string][]eventstore.StoredEvent
	seq    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string][]eventstore.StoredEvent)}
}

func (s *fakeStore) Append(ctx context.Context, aggregateID string, aggregateType eventstore.AggregateType, tenantID string, events []eventstore.Event, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[aggregateID]
	if int64(len(existing)) != expectedVersion {
		return 0, apperrors.ErrConcurrencyConflict(expectedVersion, int64(len(existing)))
	}
	version := expectedVersion
	for _, e := range events {
		version++
		s.seq++
		existing = append(existing, eventstore.StoredEvent{
			AggregateID: aggregateID, AggregateType: aggregateType, Version: version,
			EventType: e.EventType, Payload: e.Payload, Metadata: e.Metadata, GlobalSequence: s.seq,
		})
	}
	s.events[aggregateID] = existing
	return version, nil
}

func (s *fakeStore) Load(ctx context.Context, aggregateID, tenantID string) ([]eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tenantEvents(aggregateID, tenantID), nil
}

func (s *fakeStore) LoadFromSnapshot(ctx context.Context, aggregateID, tenantID string) (*eventstore.Snapshot, []eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return nil, s.tenantEvents(aggregateID, tenantID), nil
}

func (s *fakeStore) tenantEvents(aggregateID, tenantID string) []eventstore.StoredEvent {
	var out []eventstore.StoredEvent
	for _, e := range s.events[aggregateID] {
		if e.Metadata.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, aggregateID string, version int64, payload []byte, tenantID string) error {
	return nil
}

func (s *fakeStore) ReadFrom(ctx context.Context, afterGlobalSequence int64, batchSize int) ([]eventstore.StoredEvent, error) {
	return nil, nil
}

func newTestRuntime() *aggregate.Runtime[vmrequest.State, vmrequest.Command] {
	registry := codec.NewRegistry()
	codec.Register[vmrequest.CreatedPayload](registry, vmrequest.EventCreated)
	codec.Register[vmrequest.ApprovedPayload](registry, vmrequest.EventApproved)
	codec.Register[vmrequest.RejectedPayload](registry, vmrequest.EventRejected)
	codec.Register[vmrequest.CancelledPayload](registry, vmrequest.EventCancelled)
	codec.Register[vmrequest.ProvisioningStartedPayload](registry, vmrequest.EventProvisioningStarted)
	codec.Register[vmrequest.ReadyPayload](registry, vmrequest.EventReady)
	codec.Register[vmrequest.FailedPayload](registry, vmrequest.EventFailed)
	codec.Register[vmrequest.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVmRequest))

	return aggregate.NewRuntime[vmrequest.State, vmrequest.Command](newFakeStore(), registry, vmrequest.Definition{}, aggregate.DefaultConfig())
}

func ctxWithScope(tenantID, userID string, admin bool) context.Context {
	roles := []string{}
	if admin {
		roles = append(roles, "admin")
	}
	return tenant.WithContext(context.Background(), tenant.Scope{TenantID: tenantID, UserID: userID, Roles: roles})
}

func validCreateInput() CreateVmRequestInput {
	return CreateVmRequestInput{
		ProjectID:      "proj-1",
		ProjectName:    "Payments",
		RequesterEmail: "user1@example.com",
		VmName:         "web-01",
		Size:           "M",
		Justification:  "load testing the payments service",
	}
}

func TestCreateVmRequestHandler_Execute(t *testing.T) {
	h := NewCreateVmRequestHandler(newTestRuntime())
	ctx := ctxWithScope("tenant-a", "user-1", false)

	out, err := h.Execute(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.RequestID == "" || out.Version != 1 {
		t.Fatalf("out = %+v", out)
	}
}

func TestCreateVmRequestHandler_IdempotentResubmission(t *testing.T) {
	h := NewCreateVmRequestHandler(newTestRuntime())
	ctx := ctxWithScope("tenant-a", "user-1", false)

	input := validCreateInput()
	input.RequestID = "req-fixed"

	first, err := h.Execute(ctx, input)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	second, err := h.Execute(ctx, input)
	if err != nil {
		t.Fatalf("Execute() second call error = %v", err)
	}
	if second.Version != first.Version {
		t.Fatalf("expected idempotent no-op, got versions %d and %d", first.Version, second.Version)
	}
}

func TestCreateVmRequestHandler_ConflictingResubmission(t *testing.T) {
	h := NewCreateVmRequestHandler(newTestRuntime())
	ctx := ctxWithScope("tenant-a", "user-1", false)

	input := validCreateInput()
	input.RequestID = "req-fixed"
	if _, err := h.Execute(ctx, input); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	input.VmName = "web-02"
	_, err := h.Execute(ctx, input)
	if !apperrors.Is(err, apperrors.KindConcurrencyConflict) {
		t.Fatalf("expected ConcurrencyConflict, got %v", err)
	}
}

func TestApproveRequestHandler_RequiresAdmin(t *testing.T) {
	runtime := newTestRuntime()
	createH := NewCreateVmRequestHandler(runtime)
	approveH := NewApproveRequestHandler(runtime)

	ctx := ctxWithScope("tenant-a", "user-1", false)
	created, err := createH.Execute(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create error = %v", err)
	}

	_, err = approveH.Execute(ctx, created.RequestID)
	if !apperrors.Is(err, apperrors.KindForbidden) {
		t.Fatalf("expected Forbidden for non-admin approve, got %v", err)
	}

	adminCtx := ctxWithScope("tenant-a", "admin-1", true)
	out, err := approveH.Execute(adminCtx, created.RequestID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Version != 2 {
		t.Fatalf("version = %d, want 2", out.Version)
	}
}

func TestApproveRequestHandler_SelfApprovalForbidden(t *testing.T) {
	runtime := newTestRuntime()
	createH := NewCreateVmRequestHandler(runtime)
	approveH := NewApproveRequestHandler(runtime)

	ctx := ctxWithScope("tenant-a", "user-1", true)
	created, err := createH.Execute(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create error = %v", err)
	}

	_, err = approveH.Execute(ctx, created.RequestID)
	if !apperrors.Is(err, apperrors.KindForbidden) {
		t.Fatalf("expected Forbidden for self-approval, got %v", err)
	}
}

func TestCancelRequestHandler_RequiresRequester(t *testing.T) {
	runtime := newTestRuntime()
	createH := NewCreateVmRequestHandler(runtime)
	cancelH := NewCancelRequestHandler(runtime)

	requesterCtx := ctxWithScope("tenant-a", "user-1", false)
	created, err := createH.Execute(requesterCtx, validCreateInput())
	if err != nil {
		t.Fatalf("create error = %v", err)
	}

	otherCtx := ctxWithScope("tenant-a", "user-2", false)
	_, err = cancelH.Execute(otherCtx, created.RequestID)
	if !apperrors.Is(err, apperrors.KindForbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}

	out, err := cancelH.Execute(requesterCtx, created.RequestID)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Version != 2 {
		t.Fatalf("version = %d, want 2", out.Version)
	}
}

func TestRejectRequestHandler_RequiresAdmin(t *testing.T) {
	runtime := newTestRuntime()
	createH := NewCreateVmRequestHandler(runtime)
	rejectH := NewRejectRequestHandler(runtime)

	ctx := ctxWithScope("tenant-a", "user-1", false)
	created, err := createH.Execute(ctx, validCreateInput())
	if err != nil {
		t.Fatalf("create error = %v", err)
	}

	adminCtx := ctxWithScope("tenant-a", "admin-1", true)
	out, err := rejectH.Execute(adminCtx, created.RequestID, "insufficient justification provided")
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.Version != 2 {
		t.Fatalf("version = %d, want 2", out.Version)
	}
}
