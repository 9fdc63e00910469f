package orchestrator

import "github.com/riverqueue/river"

// ProvisionVMArgs carries only the VmRequest id and tenant (claim-check
// pattern, grounded on the teacher's VMCreateArgs carrying only an
// EventID): the worker re-loads everything else fresh from the event
// store, so a stale or duplicate job can never act on stale data.
type ProvisionVMArgs struct {
	VmRequestID string `json:"vm_request_id"`
	TenantID    string `json:"tenant_id"`

	// ResumeVmID is set only by the stall detector when re-driving a
	// request whose Vm aggregate already exists (status PROVISIONING).
	// Left empty for the normal APPROVED -> PROVISIONING path, where the
	// worker mints a fresh Vm aggregate id itself.
	ResumeVmID string `json:"resume_vm_id,omitempty"`
}

// Kind implements river.JobArgs.
func (ProvisionVMArgs) Kind() string { return "provision_vm" }

// InsertOpts implements river.JobArgsWithInsertOpts. UniqueOpts{ByArgs:
// true} is this repository's substitute for enqueueing inside the same
// transaction as the triggering projection write: Ent's database/sql-based
// transactions and River's pgx.Tx-based InsertTx do not compose directly,
// so TriggerSubscriber enqueues outside the projection's Ent
// transaction and relies on River's native argument-uniqueness to make a
// retried Apply (which re-attempts the enqueue) a safe no-op instead of a
// duplicate job.
func (ProvisionVMArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       "provisioning",
		MaxAttempts: 3,
		UniqueOpts: river.UniqueOpts{
			ByArgs: true,
		},
	}
}
