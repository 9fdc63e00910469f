// Package vmrequest implements the VmRequest aggregate (C5): the
// request-for-a-VM lifecycle from submission through approval/rejection
// to provisioning outcome. It is a pure Apply/Decide pair consumed by
// internal/aggregate.Runtime — this package never talks to the store,
// the codec, or the hypervisor directly.
package vmrequest

import "time"

// Status is the VmRequest lifecycle state.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusApproved     Status = "APPROVED"
	StatusRejected     Status = "REJECTED"
	StatusCancelled    Status = "CANCELLED"
	StatusProvisioning Status = "PROVISIONING"
	StatusReady        Status = "READY"
	StatusFailed       Status = "FAILED"
)

// Size is the requested VM t-shirt size.
type Size string

const (
	SizeS  Size = "S"
	SizeM  Size = "M"
	SizeL  Size = "L"
	SizeXL Size = "XL"
)

// ResourceSpec is the concrete resource allocation a Size maps to.
type ResourceSpec struct {
	CPUCores int
	MemoryGB int
	DiskGB   int
}

var sizeResources = map[Size]ResourceSpec{
	SizeS:  {CPUCores: 2, MemoryGB: 4, DiskGB: 50},
	SizeM:  {CPUCores: 4, MemoryGB: 8, DiskGB: 100},
	SizeL:  {CPUCores: 8, MemoryGB: 16, DiskGB: 200},
	SizeXL: {CPUCores: 16, MemoryGB: 32, DiskGB: 500},
}

// Resources returns the resource tuple for a size, and whether it is known.
func (s Size) Resources() (ResourceSpec, bool) {
	r, ok := sizeResources[s]
	return r, ok
}

// State is the VmRequest aggregate's replayed state.
type State struct {
	ID              string
	TenantID        string
	ProjectID       string
	ProjectName     string
	RequesterID     string
	RequesterEmail  string
	VmName          string
	Size            Size
	Justification   string
	Status          Status
	DecidedBy       string
	DecidedAt       *time.Time
	CancelledAt     *time.Time
	// Reason carries the rejection reason when Status is REJECTED, or the
	// failure reason when Status is FAILED.
	Reason     string
	VmwareVMID string
	IPAddress  string
	Hostname   string
}

// exists reports whether this aggregate id has ever received a
// VmRequestCreated event.
func (s State) exists() bool {
	return s.Status != ""
}
