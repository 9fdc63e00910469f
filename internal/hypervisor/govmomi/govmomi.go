// Package govmomi implements hypervisor.Port against a real VMware
// vCenter via github.com/vmware/govmomi.
//
// Grounded on cluster-api-provider-vsphere's pkg/session/session.go
// (connection caching keyed by server+datacenter+credentials, keepalive
// handler) and pkg/services/govmomi/vcenter/clone.go (finder lookups,
// CloneSpec construction, waiting on the clone task).
package govmomi

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/vmware/govmomi"
	"github.com/vmware/govmomi/find"
	"github.com/vmware/govmomi/object"
	"github.com/vmware/govmomi/session/keepalive"
	"github.com/vmware/govmomi/vim25/soap"
	"github.com/vmware/govmomi/vim25/types"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/internal/domain/vm"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/pkg/metrics"

	"vcenterprovision.io/controlplane/internal/hypervisor"
)

// KeepaliveInterval is the idle-session keepalive ping interval.
const KeepaliveInterval = 5 * time.Minute

// Port implements hypervisor.Port against a live vCenter. One Port serves
// every tenant; sessions are cached per connection (server + datacenter +
// credentials hash) since establishing a new one is expensive.
type Port struct {
	mu       sync.Mutex
	sessions map[string]*cachedSession
}

type cachedSession struct {
	client *govmomi.Client
	finder *find.Finder
}

var _ hypervisor.Port = (*Port)(nil)

// New constructs a Port with an empty session cache.
func New() *Port {
	return &Port{sessions: make(map[string]*cachedSession)}
}

func sessionKey(conn hypervisor.ConnectionSpec) string {
	h := sha256.New()
	h.Write([]byte(conn.Password))
	return fmt.Sprintf("%s#%s#%s#%x", conn.VCenterURL, conn.Datacenter, conn.Username, h.Sum(nil))
}

func (p *Port) getOrCreate(ctx context.Context, conn hypervisor.ConnectionSpec) (*cachedSession, error) {
	key := sessionKey(conn)

	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[key]; ok {
		if _, err := methodsUserSession(ctx, s.client); err == nil {
			return s, nil
		}
		delete(p.sessions, key)
	}

	u, err := soap.ParseURL(conn.VCenterURL)
	if err != nil {
		return nil, apperrors.ErrHypervisor("INVALID_VCENTER_URL", err)
	}
	u.User = url.UserPassword(conn.Username, conn.Password)

	client, err := govmomi.NewClient(ctx, u, conn.InsecureSkipVerify)
	if err != nil {
		return nil, apperrors.ErrHypervisor("VCENTER_CONNECT_FAILED", err)
	}

	keepalive.NewHandlerSOAP(client.Client, KeepaliveInterval, func(roundTripper soap.RoundTripper) error {
		_, err := methodsUserSession(ctx, client)
		return err
	})

	finder := find.NewFinder(client.Client, true)
	dc, err := finder.Datacenter(ctx, conn.Datacenter)
	if err != nil {
		return nil, apperrors.ErrHypervisor("DATACENTER_NOT_FOUND", err)
	}
	finder.SetDatacenter(dc)

	s := &cachedSession{client: client, finder: finder}
	p.sessions[key] = s
	return s, nil
}

// methodsUserSession checks whether the client's session is still valid.
func methodsUserSession(ctx context.Context, client *govmomi.Client) (bool, error) {
	ok, err := client.SessionManager.SessionIsActive(ctx)
	return ok, err
}

// TestConnection implements hypervisor.Port.
func (p *Port) TestConnection(ctx context.Context, conn hypervisor.ConnectionSpec) error {
	_, err := p.getOrCreate(ctx, conn)
	return err
}

// CreateVM implements hypervisor.Port by cloning spec.Template and
// reporting progress through the fixed stage sequence.
func (p *Port) CreateVM(ctx context.Context, conn hypervisor.ConnectionSpec, spec hypervisor.VMSpec, onStage hypervisor.ProgressCallback) (*hypervisor.CreateResult, error) {
	session, err := p.getOrCreate(ctx, conn)
	if err != nil {
		return nil, err
	}

	if err := report(ctx, onStage, vm.StageCloning); err != nil {
		return nil, err
	}

	template, err := session.finder.VirtualMachine(ctx, spec.Template)
	if err != nil {
		return nil, apperrors.ErrHypervisor("TEMPLATE_NOT_FOUND", err)
	}

	pool, err := session.finder.ResourcePoolOrDefault(ctx, conn.Cluster)
	if err != nil {
		return nil, apperrors.ErrHypervisor("RESOURCE_POOL_NOT_FOUND", err)
	}
	datastore, err := session.finder.DatastoreOrDefault(ctx, spec.Datastore)
	if err != nil {
		return nil, apperrors.ErrHypervisor("DATASTORE_NOT_FOUND", err)
	}
	folder, err := session.finder.DefaultFolder(ctx)
	if err != nil {
		return nil, apperrors.ErrHypervisor("FOLDER_NOT_FOUND", err)
	}

	poolRef := pool.Reference()
	dsRef := datastore.Reference()
	cloneSpec := types.VirtualMachineCloneSpec{
		Location: types.VirtualMachineRelocateSpec{
			Pool:      &poolRef,
			Datastore: &dsRef,
		},
		PowerOn: false,
		Config: &types.VirtualMachineConfigSpec{
			NumCPUs:  int32(spec.Resources.CPUCores),
			MemoryMB: int64(spec.Resources.MemoryGB) * 1024,
		},
	}

	if err := report(ctx, onStage, vm.StageConfiguring); err != nil {
		return nil, err
	}

	task, err := template.Clone(ctx, folder, spec.EffectiveName, cloneSpec)
	if err != nil {
		return nil, apperrors.ErrHypervisor("CLONE_TASK_FAILED", err)
	}
	result, err := task.WaitForResult(ctx, nil)
	if err != nil {
		return nil, apperrors.ErrHypervisor("CLONE_FAILED", err)
	}

	cloned := object.NewVirtualMachine(session.client.Client, result.Result.(types.ManagedObjectReference))

	if err := report(ctx, onStage, vm.StagePoweringOn); err != nil {
		return nil, err
	}
	powerTask, err := cloned.PowerOn(ctx)
	if err != nil {
		return nil, apperrors.ErrHypervisor("POWER_ON_FAILED", err)
	}
	if err := powerTask.Wait(ctx); err != nil {
		return nil, apperrors.ErrHypervisor("POWER_ON_FAILED", err)
	}

	if err := report(ctx, onStage, vm.StageWaitingForNetwork); err != nil {
		return nil, err
	}
	ip, err := cloned.WaitForIP(ctx, true)
	if err != nil {
		logger.Warn("timed out waiting for guest ip, continuing without it", zap.String("vm", spec.EffectiveName), zap.Error(err))
	}

	if err := report(ctx, onStage, vm.StageReady); err != nil {
		return nil, err
	}

	var moRef types.ManagedObjectReference
	var guestOS string
	var props struct {
		Config types.VirtualMachineConfigInfo
		Guest  types.GuestInfo
	}
	if err := cloned.Properties(ctx, cloned.Reference(), []string{"config", "guest"}, &props); err == nil {
		guestOS = props.Config.GuestId
	}
	moRef = cloned.Reference()

	return &hypervisor.CreateResult{
		VmwareVMID: moRef.Value,
		IPAddress:  ip,
		Hostname:   spec.EffectiveName,
		PowerState: string(types.VirtualMachinePowerStatePoweredOn),
		GuestOS:    guestOS,
	}, nil
}

// GetVMRuntime implements hypervisor.Port.
func (p *Port) GetVMRuntime(ctx context.Context, conn hypervisor.ConnectionSpec, vmwareVMID string) (*hypervisor.RuntimeStatus, error) {
	session, err := p.getOrCreate(ctx, conn)
	if err != nil {
		return nil, err
	}

	ref := types.ManagedObjectReference{Type: "VirtualMachine", Value: vmwareVMID}
	vmObj := object.NewVirtualMachine(session.client.Client, ref)

	var props struct {
		Config  types.VirtualMachineConfigInfo
		Guest   types.GuestInfo
		Runtime types.VirtualMachineRuntimeInfo
	}
	if err := vmObj.Properties(ctx, ref, []string{"config", "guest", "runtime"}, &props); err != nil {
		return nil, apperrors.ErrHypervisor("VM_PROPERTIES_FAILED", err)
	}

	return &hypervisor.RuntimeStatus{
		PowerState: string(props.Runtime.PowerState),
		IPAddress:  props.Guest.IpAddress,
		Hostname:   props.Guest.HostName,
		GuestOS:    props.Config.GuestId,
	}, nil
}

func report(ctx context.Context, onStage hypervisor.ProgressCallback, stage vm.Stage) error {
	start := time.Now()
	defer func() {
		metrics.OrchestratorStageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
	}()
	if onStage == nil {
		return nil
	}
	return onStage(ctx, stage)
}
