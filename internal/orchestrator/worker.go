// Package orchestrator implements the provisioning orchestrator (C9): the
// River worker that reacts to an approved VmRequest by driving the Vm
// aggregate through the external hypervisor to PROVISIONED or FAILED.
//
// Grounded on the teacher's internal/jobs/vm_create.go VMCreateWorker:
// claim-check job args, an idempotent re-load before doing any work, and
// work executed outside any database transaction (ADR-0012 in the
// teacher's own docs) since a hypervisor call cannot be rolled back.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmwareconfiguration"
	"vcenterprovision.io/controlplane/internal/aggregate"
	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
	"vcenterprovision.io/controlplane/internal/hypervisor"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// projectPrefix takes the first 4 characters of the project name,
// uppercased, with non-alphanumeric characters stripped.
func projectPrefix(projectName string) string {
	stripped := nonAlphanumeric.ReplaceAllString(projectName, "")
	upper := strings.ToUpper(stripped)
	if len(upper) > 4 {
		upper = upper[:4]
	}
	return upper
}

// Worker drives one VmRequest's provisioning to completion. It is
// stateless between jobs: every field is either an immutable dependency
// or re-derived from durable storage at the start of Work.
type Worker struct {
	river.WorkerDefaults[ProvisionVMArgs]

	ent            *ent.Client
	vmRuntime      *aggregate.Runtime[vm.State, vm.Command]
	requestRuntime *aggregate.Runtime[vmrequest.State, vmrequest.Command]
	hv             hypervisor.Port
	cipher         hypervisor.CredentialCipher
	breakers       *breakerManager
	vmIDFactory    func() string
}

// NewWorker constructs a Worker.
func NewWorker(
	entClient *ent.Client,
	vmRuntime *aggregate.Runtime[vm.State, vm.Command],
	requestRuntime *aggregate.Runtime[vmrequest.State, vmrequest.Command],
	hv hypervisor.Port,
	cipher hypervisor.CredentialCipher,
	vmIDFactory func() string,
) *Worker {
	return &Worker{
		ent: entClient, vmRuntime: vmRuntime, requestRuntime: requestRuntime,
		hv: hv, cipher: cipher, breakers: newBreakerManager(), vmIDFactory: vmIDFactory,
	}
}

var _ river.Worker[ProvisionVMArgs] = (*Worker)(nil)

// Work implements river.Worker. It never swallows context cancellation:
// a cancelled outer context aborts the remainder of the job and River
// retries it later, per the orchestrator's cancellation-propagation
// requirement.
func (w *Worker) Work(ctx context.Context, job *river.Job[ProvisionVMArgs]) error {
	args := job.Args
	ctx = tenant.WithContext(ctx, tenant.Scope{TenantID: args.TenantID, UserID: "system", Roles: []string{"system"}})

	requestState, _, err := w.requestRuntime.Load(ctx, args.VmRequestID)
	if err != nil {
		return fmt.Errorf("load vm request %s: %w", args.VmRequestID, err)
	}

	var vmID string
	switch {
	case requestState.Status == vmrequest.StatusApproved:
		vmID = w.vmIDFactory()

		// Start provisioning on the Vm aggregate and mark the request
		// PROVISIONING before any hypervisor call, so a crash here still
		// leaves a resumable, observable state (spec recommends replaying
		// from the last durable event).
		if _, err := w.vmRuntime.Execute(ctx, vmID, vm.StartProvisioning{
			RequestID: args.VmRequestID, Name: requestState.VmName, Size: string(requestState.Size),
		}); err != nil {
			return fmt.Errorf("start provisioning vm %s: %w", vmID, err)
		}
		if _, err := w.requestRuntime.Execute(ctx, args.VmRequestID, vmrequest.MarkProvisioning{}); err != nil {
			return fmt.Errorf("mark request %s provisioning: %w", args.VmRequestID, err)
		}

	case requestState.Status == vmrequest.StatusProvisioning && args.ResumeVmID != "":
		// Stall-detection re-drive: the Vm aggregate already exists, skip
		// straight to re-running the hypervisor call. Not a correctness
		// requirement (the spec only recommends resumability), so this
		// may redo a clone that in fact completed; operators are expected
		// to reconcile any resulting duplicate via the hypervisor side.
		vmID = args.ResumeVmID
		vmState, _, err := w.vmRuntime.Load(ctx, vmID)
		if err != nil {
			return fmt.Errorf("load vm %s for resume: %w", vmID, err)
		}
		if vmState.Status != vm.StatusProvisioning {
			logger.Info("resume job is a no-op, vm already reached a terminal state",
				zap.String("request_id", args.VmRequestID), zap.String("vm_id", vmID), zap.String("status", string(vmState.Status)))
			return nil
		}

	default:
		logger.Info("provisioning job is a no-op, request already progressed",
			zap.String("request_id", args.VmRequestID),
			zap.String("status", string(requestState.Status)),
		)
		return nil
	}

	// Step 1: load the tenant's VMware configuration.
	config, err := w.ent.VMwareConfiguration.Query().
		Where(vmwareconfiguration.TenantIDEQ(args.TenantID)).
		Only(ctx)
	if err != nil {
		return w.failVm(ctx, args.VmRequestID, vmID, "VMware configuration missing")
	}

	// Step 3: effective spec.
	resources, ok := requestState.Size.Resources()
	if !ok {
		return w.failVm(ctx, args.VmRequestID, vmID, fmt.Sprintf("unknown size %q", requestState.Size))
	}
	effectiveName := projectPrefix(requestState.ProjectName) + "-" + requestState.VmName

	password, err := w.cipher.Decrypt(config.EncryptedPassword)
	if err != nil {
		return w.failVm(ctx, args.VmRequestID, vmID, "failed to decrypt vcenter credentials")
	}
	conn := hypervisor.ConnectionSpec{
		TenantID: args.TenantID, VCenterURL: config.VcenterURL, Username: config.Username,
		Password: password, Datacenter: config.Datacenter, Cluster: config.Cluster,
		Datastore: config.Datastore, Network: config.Network, InsecureSkipVerify: config.InsecureSkipVerify,
	}
	spec := hypervisor.VMSpec{
		EffectiveName: effectiveName, Template: config.Template,
		Datastore: config.Datastore, Network: config.Network, Resources: resources,
	}

	onStage := func(stageCtx context.Context, stage vm.Stage) error {
		if stageCtx.Err() != nil {
			return stageCtx.Err()
		}
		_, err := w.vmRuntime.Execute(stageCtx, vmID, vm.ReportProgress{Stage: string(stage)})
		return err
	}

	breaker := w.breakers.forTenant(args.TenantID)
	result, createErr := breaker.Execute(func() (*hypervisor.CreateResult, error) {
		return w.hv.CreateVM(ctx, conn, spec, onStage)
	})

	if ctx.Err() != nil {
		// Cancellation propagates outward; no further aggregate mutation.
		return ctx.Err()
	}

	if createErr != nil {
		return w.failVm(ctx, args.VmRequestID, vmID, createErr.Error())
	}

	return w.succeed(ctx, args.VmRequestID, vmID, result)
}

func (w *Worker) succeed(ctx context.Context, requestID, vmID string, result *hypervisor.CreateResult) error {
	if _, err := w.vmRuntime.Execute(ctx, vmID, vm.CompleteProvisioning{
		VmwareVMID: result.VmwareVMID, IPAddress: result.IPAddress, Hostname: result.Hostname,
		PowerState: result.PowerState, GuestOS: result.GuestOS,
	}); err != nil {
		return fmt.Errorf("complete provisioning vm %s: %w", vmID, err)
	}

	if _, err := w.requestRuntime.Execute(ctx, requestID, vmrequest.MarkReady{
		VmwareVMID: result.VmwareVMID, IPAddress: result.IPAddress, Hostname: result.Hostname,
	}); err != nil {
		// The Vm aggregate already recorded success and cannot be rolled
		// back (event sourcing forbids it). This is now an inconsistent
		// system state requiring human/alerting attention.
		logger.Error("CRITICAL: system in inconsistent state, vm provisioned but request not marked ready",
			zap.String("request_id", requestID),
			zap.String("vm_id", vmID),
			zap.Int("step", 6),
			zap.Error(err),
		)
		return fmt.Errorf("mark request %s ready after vm %s provisioned: %w", requestID, vmID, err)
	}

	logger.Info("vm provisioned",
		zap.String("request_id", requestID),
		zap.String("vm_id", vmID),
		zap.String("vmware_vm_id", result.VmwareVMID),
		zap.String("hostname", result.Hostname),
	)
	return nil
}

// failVm records failure on both aggregates when the Vm aggregate already
// exists (it was created before the failure occurred).
func (w *Worker) failVm(ctx context.Context, requestID, vmID, reason string) error {
	if _, err := w.vmRuntime.Execute(ctx, vmID, vm.FailProvisioning{Reason: reason}); err != nil {
		logger.Error("failed to record vm provisioning failure", zap.String("vm_id", vmID), zap.Error(err))
	}
	return w.fail(ctx, requestID, vmID, reason)
}

// fail records failure on the VmRequest aggregate only; failVm calls it
// after recording the failure on the Vm aggregate.
func (w *Worker) fail(ctx context.Context, requestID, vmID, reason string) error {
	if _, err := w.requestRuntime.Execute(ctx, requestID, vmrequest.MarkFailed{Reason: reason}); err != nil {
		return fmt.Errorf("mark request %s failed (vm=%s, reason=%q): %w", requestID, vmID, reason, err)
	}
	logger.Warn("provisioning failed",
		zap.String("request_id", requestID),
		zap.String("vm_id", vmID),
		zap.String("reason", reason),
	)
	return nil
}
