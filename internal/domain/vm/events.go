package vm

import "time"

// Event type strings; codec registry keys.
const (
	EventProvisioningStarted = "VmProvisioningStarted"
	EventProgressUpdated     = "VmProvisioningProgressUpdated"
	EventProvisioned         = "VmProvisioned"
	EventProvisioningFailed  = "VmProvisioningFailed"
	EventStatusSynced        = "VmStatusSynced"
)

// ProvisioningStartedPayload is emitted by StartProvisioning.
type ProvisioningStartedPayload struct {
	RequestID string `json:"request_id"`
	Name      string `json:"name"`
	Size      string `json:"size"`
}

// ProgressUpdatedPayload is emitted by ReportProgress.
type ProgressUpdatedPayload struct {
	Stage string `json:"stage"`
}

// ProvisionedPayload is emitted by CompleteProvisioning.
type ProvisionedPayload struct {
	VmwareVMID string `json:"vmware_vm_id"`
	IPAddress  string `json:"ip_address"`
	Hostname   string `json:"hostname"`
	PowerState string `json:"power_state"`
	GuestOS    string `json:"guest_os"`
}

// ProvisioningFailedPayload is emitted by FailProvisioning.
type ProvisioningFailedPayload struct {
	Reason string `json:"reason"`
}

// StatusSyncedPayload is emitted by SyncStatus. ObservedAt is the time the
// hypervisor reported this status, which may lag the event's own
// OccurredAt metadata by the polling interval.
type StatusSyncedPayload struct {
	PowerState string    `json:"power_state"`
	IPAddress  string    `json:"ip_address"`
	Hostname   string    `json:"hostname"`
	GuestOS    string    `json:"guest_os"`
	ObservedAt time.Time `json:"observed_at"`
}
