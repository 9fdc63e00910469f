// Package hypervisor defines the port (internal/hypervisor.Port) through
// which the provisioning orchestrator (C9) drives an external VMware
// vCenter. The production implementation lives in
// internal/hypervisor/govmomi; internal/hypervisor/mock is the test double.
package hypervisor

import (
	"context"

	"vcenterprovision.io/controlplane/internal/domain/vm"
	"vcenterprovision.io/controlplane/internal/domain/vmrequest"
)

// ConnectionSpec is the per-tenant vCenter connection configuration
// resolved from ent.VMwareConfiguration before a hypervisor call.
type ConnectionSpec struct {
	TenantID           string
	VCenterURL         string
	Username           string
	Password           string // decrypted via CredentialCipher before reaching this struct
	Datacenter         string
	Cluster            string
	Datastore          string
	Network            string
	Template           string
	InsecureSkipVerify bool
}

// VMSpec is the effective VM specification computed by the orchestrator:
// the request's size mapped to resources, the project-prefixed name, and
// the tenant's template/placement choices.
type VMSpec struct {
	EffectiveName string
	Template      string
	Datastore     string
	Network       string
	Resources     vmrequest.ResourceSpec
}

// ProgressCallback is invoked by CreateVM once per stage transition. It
// must not block for long; the orchestrator uses it to emit ReportProgress
// on the Vm aggregate, and the projection engine builds the
// provisioning-progress projection from the resulting events.
type ProgressCallback func(ctx context.Context, stage vm.Stage) error

// CreateResult is returned by a successful CreateVM call.
type CreateResult struct {
	VmwareVMID string
	IPAddress  string
	Hostname   string
	PowerState string
	GuestOS    string
	Warning    string
}

// RuntimeStatus is a point-in-time observation used by status sync.
type RuntimeStatus struct {
	PowerState string
	IPAddress  string
	Hostname   string
	GuestOS    string
}

// Port is the hypervisor abstraction the orchestrator depends on. Every
// method takes the resolved ConnectionSpec for the calling tenant rather
// than holding one fixed vCenter per Port instance, since a single
// orchestrator process serves every tenant.
type Port interface {
	// TestConnection verifies the connection settings are reachable and
	// the credentials are valid, without creating anything. No operation
	// in this repository calls it.
	TestConnection(ctx context.Context, conn ConnectionSpec) error

	// CreateVM clones spec.Template into a new VM and powers it on,
	// invoking onStage as the clone progresses through
	// CLONING/CONFIGURING/POWERING_ON/WAITING_FOR_NETWORK/READY.
	CreateVM(ctx context.Context, conn ConnectionSpec, spec VMSpec, onStage ProgressCallback) (*CreateResult, error)

	// GetVMRuntime polls the current runtime status of an already
	// provisioned VM, for the post-provisioning status sync.
	GetVMRuntime(ctx context.Context, conn ConnectionSpec, vmwareVMID string) (*RuntimeStatus, error)
}

// CredentialCipher encrypts/decrypts the vCenter password at rest. The
// production cipher (envelope encryption against a KMS or similar) is out
// of scope for this repository; PassthroughCipher is the default so the
// rest of the system can be built and tested against the port shape now.
type CredentialCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// PassthroughCipher implements CredentialCipher with no actual
// transformation. Never use against a real vCenter; it exists purely so
// ConnectionSpec.Password round-trips correctly while a real cipher is
// pending.
type PassthroughCipher struct{}

func (PassthroughCipher) Encrypt(plaintext string) (string, error) { return plaintext, nil }
func (PassthroughCipher) Decrypt(ciphertext string) (string, error) { return ciphertext, nil }
