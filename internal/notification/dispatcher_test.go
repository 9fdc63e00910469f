package notification

import (
	"context"
	"sync"
	"testing"
	"time"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/projection"
	"vcenterprovision.io/controlplane/internal/tenant"
	"vcenterprovision.io/controlplane/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

type fakeSender struct {
	mu   sync.Mutex
	sent []Params
}

func (f *fakeSender) Send(_ context.Context, params Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// fakeStore is a minimal in-memory eventstore.Store, duplicated per-package
// the same way internal/projection's own tests do.
type fakeStore struct {
	mu  sync.Mutex
	all []eventstore.StoredEvent
	seq int64
}

func (s *fakeStore) Append(ctx context.Context, aggregateID string, aggregateType eventstore.AggregateType, tenantID string, events []eventstore.Event, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	version := expectedVersion
	for _, e := range events {
		version++
		s.seq++
		stored := eventstore.StoredEvent{
			EventID: aggregateID + "-" + e.EventType, AggregateID: aggregateID, AggregateType: aggregateType,
			Version: version, EventType: e.EventType, Payload: e.Payload, Metadata: e.Metadata,
			GlobalSequence: s.seq,
		}
		s.all = append(s.all, stored)
	}
	return version, nil
}

func (s *fakeStore) Load(ctx context.Context, aggregateID, tenantID string) ([]eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventstore.StoredEvent
	for _, e := range s.all {
		if e.AggregateID == aggregateID && e.Metadata.TenantID == tenantID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) LoadFromSnapshot(ctx context.Context, aggregateID, tenantID string) (*eventstore.Snapshot, []eventstore.StoredEvent, error) {
	events, err := s.Load(ctx, aggregateID, tenantID)
	return nil, events, err
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, aggregateID string, version int64, payload []byte, tenantID string) error {
	return nil
}

func (s *fakeStore) ReadFrom(ctx context.Context, afterGlobalSequence int64, batchSize int) ([]eventstore.StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []eventstore.StoredEvent
	for _, e := range s.all {
		if e.GlobalSequence > afterGlobalSequence {
			out = append(out, e)
			if len(out) >= batchSize {
				break
			}
		}
	}
	return out, nil
}

func newVmRequestRegistry() *codec.Registry {
	registry := codec.NewRegistry()
	codec.Register[vmrequest.CreatedPayload](registry, vmrequest.EventCreated)
	codec.Register[vmrequest.ApprovedPayload](registry, vmrequest.EventApproved)
	codec.Register[vmrequest.RejectedPayload](registry, vmrequest.EventRejected)
	codec.Register[vmrequest.CancelledPayload](registry, vmrequest.EventCancelled)
	codec.Register[vmrequest.ProvisioningStartedPayload](registry, vmrequest.EventProvisioningStarted)
	codec.Register[vmrequest.ReadyPayload](registry, vmrequest.EventReady)
	codec.Register[vmrequest.FailedPayload](registry, vmrequest.EventFailed)
	codec.Register[vmrequest.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVmRequest))
	return registry
}

// TestDispatcher_SendsOnApproval exercises the full projection path: the
// vmrequest projection subscriber creates the read-model row the
// dispatcher depends on, both subscribers run off the same event stream,
// and an Approved event results in exactly one notification send.
func TestDispatcher_SendsOnApproval(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "notification_dispatcher")
	registry := newVmRequestRegistry()
	store := &fakeStore{}
	runtime := aggregate.NewRuntime[vmrequest.State, vmrequest.Command](store, registry, vmrequest.Definition{}, aggregate.DefaultConfig())

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	if _, err := runtime.Execute(ctx, "req-1", vmrequest.CreateVmRequest{
		ProjectID: "proj-1", ProjectName: "Payments", RequesterID: "user-1",
		RequesterEmail: "user1@example.com", VmName: "web-01", Size: "M",
		Justification: "load testing the payments service",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	adminCtx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "admin-1", Roles: []string{"admin"}})
	if _, err := runtime.Execute(adminCtx, "req-1", vmrequest.ApproveRequest{ActorID: "admin-1"}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	sender := &fakeSender{}
	engine := projection.New(store, registry, client,
		projection.Config{BatchSize: 16, PollInterval: 10 * time.Millisecond, MaxAttempts: 3},
		projection.VmRequestProjectionSubscriber{}, NewDispatcher(sender))

	runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	go engine.Run(runCtx)

	deadline := time.Now().Add(2 * time.Second)
	for sender.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for a notification send")
		}
		time.Sleep(20 * time.Millisecond)
	}

	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) != 1 {
		t.Fatalf("len(sent) = %d, want 1", len(sender.sent))
	}
	got := sender.sent[0]
	if got.RecipientID != "user-1" || got.Type != TypeRequestApproved || got.TenantID != "tenant-a" {
		t.Fatalf("sent params = %+v", got)
	}
}

// TestDispatcher_NotInterestedInCreated confirms the dispatcher only acts
// on the four lifecycle-decision events, not on submission itself.
func TestDispatcher_NotInterestedInCreated(t *testing.T) {
	d := NewDispatcher(&fakeSender{})
	if d.Interested(vmrequest.EventCreated) {
		t.Fatal("dispatcher should not be interested in EventCreated")
	}
	if !d.Interested(vmrequest.EventApproved) || !d.Interested(vmrequest.EventRejected) ||
		!d.Interested(vmrequest.EventReady) || !d.Interested(vmrequest.EventFailed) {
		t.Fatal("dispatcher should be interested in all four decision events")
	}
}
