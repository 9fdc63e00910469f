package projection

import (
	"context"
	"sync"
	"testing"
	"time"

	"vcenterprovision.io/controlplane/ent/requesttimeline"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
	"vcenterprovision.io/controlplane/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

// fakeStore is a minimal in-memory eventstore.Store for projection tests,
// with a working ReadFrom (the aggregate-package fake never needed one).
type fakeStore struct {
	mu     sync.Mutex
	events map[string][]eventstore.StoredEvent
	all    []eventstore.StoredEvent
	seq    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{events: make(map[string][]eventstore.StoredEvent)}
}

func (s *fakeStore) Append(ctx context.Context, aggregateID string, aggregateType eventstore.AggregateType, tenantID string, events []eventstore.Event, expectedVersion int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing := s.events[aggregateID]
	version := expectedVersion
	for _, e := range events {
		version++
		s.seq++
		stored := eventstore.StoredEvent{
			EventID: e.Metadata.CorrelationID, AggregateID: aggregateID, AggregateType: aggregateType,
			Version: version, EventType: e.EventType, Payload: e.Payload, Metadata: e.Metadata,
			GlobalSequence: s.seq,
		}
		if stored.EventID == "" {
			stored.EventID = aggregateID + "-" + e.EventType
		}
		existing = append(existing, stored)
		s.all = append(s.all, stored)
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

// TestEngine_VmRequestProjectionAndTimeline exercises the full
// read-write path: Runtime.Execute appends a Created event, the engine
// picks it up via ReadFrom, and both the VmRequestProjection and the
// RequestTimeline rows land atomically with the cursor advance.
func TestEngine_VmRequestProjectionAndTimeline(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "projection_engine")
	registry := newVmRequestRegistry()
	store := newFakeStore()
	runtime := aggregate.NewRuntime[vmrequest.State, vmrequest.Command](store, registry, vmrequest.Definition{}, aggregate.DefaultConfig())

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	_, err := runtime.Execute(ctx, "req-1", vmrequest.CreateVmRequest{
		ProjectID: "proj-1", ProjectName: "Payments", RequesterID: "user-1",
		RequesterEmail: "user1@example.com", VmName: "web-01", Size: "M",
		Justification: "load testing the payments service",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	engine := New(store, registry, client, Config{BatchSize: 16, PollInterval: 10 * time.Millisecond, MaxAttempts: 3},
		VmRequestProjectionSubscriber{}, TimelineSubscriber{})

	runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	go engine.Run(runCtx)

	deadline := time.Now().Add(2 * time.Second)
	for {
		count, err := client.VMRequestProjection.Query().Where(vmrequestprojection.IDEQ("req-1")).Count(context.Background())
		if err != nil {
			t.Fatalf("query projection: %v", err)
		}
		if count == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for vmrequest projection row")
		}
		time.Sleep(20 * time.Millisecond)
	}

	row, err := client.VMRequestProjection.Get(context.Background(), "req-1")
	if err != nil {
		t.Fatalf("get projection: %v", err)
	}
	if string(row.Status) != "PENDING" || row.VmName != "web-01" {
		t.Fatalf("row = %+v", row)
	}

	timelineCount, err := client.RequestTimeline.Query().Where(requesttimeline.RequestIDEQ("req-1")).Count(context.Background())
	if err != nil {
		t.Fatalf("query timeline: %v", err)
	}
	if timelineCount != 1 {
		t.Fatalf("timelineCount = %d, want 1", timelineCount)
	}

	cancel()
}
