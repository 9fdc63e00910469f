// Package mock is an in-memory hypervisor.Port test double, driven by a
// fixed stage sequence so orchestrator tests can exercise progress
// callbacks without a real vCenter.
package mock

import (
	"context"
	"fmt"
	"sync"

	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/hypervisor"
)

var defaultStages = []vm.Stage{
	vm.StageCloning, vm.StageConfiguring, vm.StagePoweringOn, vm.StageWaitingForNetwork, vm.StageReady,
}

// Port is a configurable hypervisor.Port double.
type Port struct {
	mu sync.Mutex

	// FailAt, if non-empty, makes CreateVM return an error once onStage is
	// called with this stage (progress is still reported up to that point).
	FailAt string

	// ConnectionError, if set, makes TestConnection/CreateVM/GetVMRuntime
	// fail outright without reporting any progress, simulating an
	// unreachable vCenter.
	ConnectionError error

	calls int
}

var _ hypervisor.Port = (*Port)(nil)

func (p *Port) TestConnection(ctx context.Context, conn hypervisor.ConnectionSpec) error {
	return p.ConnectionError
}

func (p *Port) CreateVM(ctx context.Context, conn hypervisor.ConnectionSpec, spec hypervisor.VMSpec, onStage hypervisor.ProgressCallback) (*hypervisor.CreateResult, error) {
	if p.ConnectionError != nil {
		return nil, p.ConnectionError
	}
	p.mu.Lock()
	p.calls++
	call := p.calls
	p.mu.Unlock()

	for _, stage := range defaultStages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if onStage != nil {
			if err := onStage(ctx, stage); err != nil {
				return nil, err
			}
		}
		if string(stage) == p.FailAt {
			return nil, fmt.Errorf("mock hypervisor: simulated failure at stage %s", stage)
		}
	}

	return &hypervisor.CreateResult{
		VmwareVMID: fmt.Sprintf("vm-%s-%d", spec.EffectiveName, call),
		IPAddress:  "10.0.0.100",
		Hostname:   spec.EffectiveName,
		PowerState: "poweredOn",
		GuestOS:    "otherGuest64",
	}, nil
}

func (p *Port) GetVMRuntime(ctx context.Context, conn hypervisor.ConnectionSpec, vmwareVMID string) (*hypervisor.RuntimeStatus, error) {
	if p.ConnectionError != nil {
		return nil, p.ConnectionError
	}
	return &hypervisor.RuntimeStatus{
		PowerState: "poweredOn",
		IPAddress:  "10.0.0.100",
		Hostname:   vmwareVMID,
		GuestOS:    "otherGuest64",
	}, nil
}
