package orchestrator

import (
	"context"
	"sync"
	"testing"

	"github.com/riverqueue/river"

	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/hypervisor"
	"vcenterprovision.io/controlplane/internal/hypervisor/mock"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
	"vcenterprovision.io/controlplane/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

// fakeStore is the same minimal in-memory eventstore.Store used by the
// projection engine tests; duplicated here (rather than exported from
// internal/projection) since both are test-only and package-private.
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
	version := expectedVersion
	for _, e := range events {
		version++
		s.seq++
		existing = append(existing, eventstore.StoredEvent{
			EventID: aggregateID + "-" + e.EventType, AggregateID: aggregateID, AggregateType: aggregateType,
			Version: version, EventType: e.EventType, Payload: e.Payload, Metadata: e.Metadata,
			GlobalSequence: s.seq,
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

func newVmRequestRuntime(store eventstore.Store) *aggregate.Runtime[vmrequest.State, vmrequest.Command] {
	registry := codec.NewRegistry()
	codec.Register[vmrequest.CreatedPayload](registry, vmrequest.EventCreated)
	codec.Register[vmrequest.ApprovedPayload](registry, vmrequest.EventApproved)
	codec.Register[vmrequest.RejectedPayload](registry, vmrequest.EventRejected)
	codec.Register[vmrequest.CancelledPayload](registry, vmrequest.EventCancelled)
	codec.Register[vmrequest.ProvisioningStartedPayload](registry, vmrequest.EventProvisioningStarted)
	codec.Register[vmrequest.ReadyPayload](registry, vmrequest.EventReady)
	codec.Register[vmrequest.FailedPayload](registry, vmrequest.EventFailed)
	codec.Register[vmrequest.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVmRequest))
	return aggregate.NewRuntime[vmrequest.State, vmrequest.Command](store, registry, vmrequest.Definition{}, aggregate.DefaultConfig())
}

func newVmRuntime(store eventstore.Store) *aggregate.Runtime[vm.State, vm.Command] {
	registry := codec.NewRegistry()
	codec.Register[vm.ProvisioningStartedPayload](registry, vm.EventProvisioningStarted)
	codec.Register[vm.ProgressUpdatedPayload](registry, vm.EventProgressUpdated)
	codec.Register[vm.ProvisionedPayload](registry, vm.EventProvisioned)
	codec.Register[vm.ProvisioningFailedPayload](registry, vm.EventProvisioningFailed)
	codec.Register[vm.StatusSyncedPayload](registry, vm.EventStatusSynced)
	codec.Register[vm.State](registry, aggregate.SnapshotEventType(eventstore.AggregateVm))
	return aggregate.NewRuntime[vm.State, vm.Command](store, registry, vm.Definition{}, aggregate.DefaultConfig())
}

// approvedRequest creates and approves req-1 for tenant-a, returning a ctx
// carrying the tenant scope every subsequent call in the test should use.
func approvedRequest(t *testing.T, requestRuntime *aggregate.Runtime[vmrequest.State, vmrequest.Command]) context.Context {
	t.Helper()
	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "requester-1"})

	if _, err := requestRuntime.Execute(ctx, "req-1", vmrequest.CreateVmRequest{
		ProjectID: "proj-1", ProjectName: "Payments!", RequesterID: "requester-1",
		RequesterEmail: "requester@example.com", VmName: "web-01", Size: "M",
		Justification: "load testing the payments service",
	}); err != nil {
		t.Fatalf("CreateVmRequest: %v", err)
	}
	if _, err := requestRuntime.Execute(ctx, "req-1", vmrequest.ApproveRequest{ActorID: "admin-1"}); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}
	return ctx
}

func TestProjectPrefix(t *testing.T) {
	cases := map[string]string{
		"Payments!": "PAYM",
		"ab":        "AB",
		"  x-y-z--": "XYZ",
		"":          "",
	}
	for in, want := range cases {
		if got := projectPrefix(in); got != want {
			t.Errorf("projectPrefix(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestWorker_Work_HappyPath(t *testing.T) {
	entClient := testutil.OpenEntPostgres(t, "orchestrator_worker")
	ctx := context.Background()

	_, err := entClient.VMwareConfiguration.Create().
		SetID("cfg-tenant-a").
		SetTenantID("tenant-a").
		SetVcenterURL("https://vcenter.example.com/sdk").
		SetUsername("svc-account").
		SetEncryptedPassword("hunter2").
		SetDatacenter("dc-1").
		SetCluster("cluster-1").
		SetDatastore("datastore-1").
		SetNetwork("vlan-100").
		SetTemplate("ubuntu-22.04-template").
		Save(ctx)
	if err != nil {
		t.Fatalf("create vmware configuration: %v", err)
	}

	store := newFakeStore()
	requestRuntime := newVmRequestRuntime(store)
	vmRuntime := newVmRuntime(store)
	reqCtx := approvedRequest(t, requestRuntime)
	_ = reqCtx

	hv := &mock.Port{}
	worker := NewWorker(entClient, vmRuntime, requestRuntime, hv, hypervisor.PassthroughCipher{}, func() string { return "vm-1" })

	job := &river.Job[ProvisionVMArgs]{Args: ProvisionVMArgs{VmRequestID: "req-1", TenantID: "tenant-a"}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	requestState, _, err := requestRuntime.Load(reqCtx, "req-1")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if requestState.Status != vmrequest.StatusReady {
		t.Fatalf("request status = %s, want READY", requestState.Status)
	}
	if requestState.VmwareVMID == "" {
		t.Fatal("request VmwareVMID is empty")
	}

	vmState, _, err := vmRuntime.Load(reqCtx, "vm-1")
	if err != nil {
		t.Fatalf("load vm: %v", err)
	}
	if vmState.Status != vm.StatusProvisioned {
		t.Fatalf("vm status = %s, want PROVISIONED", vmState.Status)
	}
	if vmState.Name != "PAYM-web-01" && vmState.Name != "web-01" {
		// vm.State.Name is the request's vm_name, not the effective name;
		// the effective name only ever reaches the hypervisor port.
		t.Fatalf("vm name = %s", vmState.Name)
	}
}

func TestWorker_Work_MissingVmwareConfiguration(t *testing.T) {
	entClient := testutil.OpenEntPostgres(t, "orchestrator_worker_missing_config")

	store := newFakeStore()
	requestRuntime := newVmRequestRuntime(store)
	vmRuntime := newVmRuntime(store)
	reqCtx := approvedRequest(t, requestRuntime)

	hv := &mock.Port{}
	worker := NewWorker(entClient, vmRuntime, requestRuntime, hv, hypervisor.PassthroughCipher{}, func() string { return "vm-1" })

	job := &river.Job[ProvisionVMArgs]{Args: ProvisionVMArgs{VmRequestID: "req-1", TenantID: "tenant-a"}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	requestState, _, err := requestRuntime.Load(reqCtx, "req-1")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if requestState.Status != vmrequest.StatusFailed {
		t.Fatalf("request status = %s, want FAILED", requestState.Status)
	}

	vmState, _, err := vmRuntime.Load(reqCtx, "vm-1")
	if err != nil {
		t.Fatalf("load vm: %v", err)
	}
	if vmState.Status != vm.StatusFailed {
		t.Fatalf("vm status = %s, want FAILED", vmState.Status)
	}
}

func TestWorker_Work_HypervisorFailure(t *testing.T) {
	entClient := testutil.OpenEntPostgres(t, "orchestrator_worker_hv_failure")
	ctx := context.Background()

	_, err := entClient.VMwareConfiguration.Create().
		SetID("cfg-tenant-a").
		SetTenantID("tenant-a").
		SetVcenterURL("https://vcenter.example.com/sdk").
		SetUsername("svc-account").
		SetEncryptedPassword("hunter2").
		SetDatacenter("dc-1").
		SetCluster("cluster-1").
		SetDatastore("datastore-1").
		SetNetwork("vlan-100").
		SetTemplate("ubuntu-22.04-template").
		Save(ctx)
	if err != nil {
		t.Fatalf("create vmware configuration: %v", err)
	}

	store := newFakeStore()
	requestRuntime := newVmRequestRuntime(store)
	vmRuntime := newVmRuntime(store)
	reqCtx := approvedRequest(t, requestRuntime)

	hv := &mock.Port{FailAt: string(vm.StageConfiguring)}
	worker := NewWorker(entClient, vmRuntime, requestRuntime, hv, hypervisor.PassthroughCipher{}, func() string { return "vm-1" })

	job := &river.Job[ProvisionVMArgs]{Args: ProvisionVMArgs{VmRequestID: "req-1", TenantID: "tenant-a"}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	requestState, _, err := requestRuntime.Load(reqCtx, "req-1")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if requestState.Status != vmrequest.StatusFailed {
		t.Fatalf("request status = %s, want FAILED", requestState.Status)
	}

	vmState, _, err := vmRuntime.Load(reqCtx, "vm-1")
	if err != nil {
		t.Fatalf("load vm: %v", err)
	}
	if vmState.Status != vm.StatusFailed {
		t.Fatalf("vm status = %s, want FAILED", vmState.Status)
	}
	if vmState.Stage != vm.StageConfiguring {
		t.Fatalf("vm stage = %s, want CONFIGURING (last reported stage before failure)", vmState.Stage)
	}
}

// TestWorker_Work_ResumesStalledRequest exercises the ResumeVmID path: the
// request is already PROVISIONING and the Vm aggregate already exists, as
// the stall detector would find it.
func TestWorker_Work_ResumesStalledRequest(t *testing.T) {
	entClient := testutil.OpenEntPostgres(t, "orchestrator_worker_resume")
	ctx := context.Background()

	_, err := entClient.VMwareConfiguration.Create().
		SetID("cfg-tenant-a").
		SetTenantID("tenant-a").
		SetVcenterURL("https://vcenter.example.com/sdk").
		SetUsername("svc-account").
		SetEncryptedPassword("hunter2").
		SetDatacenter("dc-1").
		SetCluster("cluster-1").
		SetDatastore("datastore-1").
		SetNetwork("vlan-100").
		SetTemplate("ubuntu-22.04-template").
		Save(ctx)
	if err != nil {
		t.Fatalf("create vmware configuration: %v", err)
	}

	store := newFakeStore()
	requestRuntime := newVmRequestRuntime(store)
	vmRuntime := newVmRuntime(store)
	reqCtx := approvedRequest(t, requestRuntime)

	// Simulate a prior worker crash right after StartProvisioning/MarkProvisioning.
	if _, err := vmRuntime.Execute(reqCtx, "vm-1", vm.StartProvisioning{RequestID: "req-1", Name: "web-01", Size: "M"}); err != nil {
		t.Fatalf("seed vm.StartProvisioning: %v", err)
	}
	if _, err := requestRuntime.Execute(reqCtx, "req-1", vmrequest.MarkProvisioning{}); err != nil {
		t.Fatalf("seed vmrequest.MarkProvisioning: %v", err)
	}

	hv := &mock.Port{}
	worker := NewWorker(entClient, vmRuntime, requestRuntime, hv, hypervisor.PassthroughCipher{}, func() string {
		t.Fatal("vmIDFactory should not be called on a resume job")
		return ""
	})

	job := &river.Job[ProvisionVMArgs]{Args: ProvisionVMArgs{VmRequestID: "req-1", TenantID: "tenant-a", ResumeVmID: "vm-1"}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error = %v", err)
	}

	requestState, _, err := requestRuntime.Load(reqCtx, "req-1")
	if err != nil {
		t.Fatalf("load request: %v", err)
	}
	if requestState.Status != vmrequest.StatusReady {
		t.Fatalf("request status = %s, want READY", requestState.Status)
	}
}
