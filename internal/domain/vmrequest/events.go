package vmrequest

// Event type strings. These are the codec registry keys (internal/codec)
// and the values stored in the event store's event_type column.
const (
	EventCreated             = "VmRequestCreated"
	EventApproved            = "VmRequestApproved"
	EventRejected            = "VmRequestRejected"
	EventCancelled           = "VmRequestCancelled"
	EventProvisioningStarted = "VmRequestProvisioningStarted"
	EventReady               = "VmRequestReady"
	EventFailed              = "VmRequestFailed"
)

// CreatedPayload is emitted by CreateVmRequest.
type CreatedPayload struct {
	ProjectID      string `json:"project_id"`
	ProjectName    string `json:"project_name"`
	RequesterID    string `json:"requester_id"`
	RequesterEmail string `json:"requester_email"`
	VmName         string `json:"vm_name"`
	Size           string `json:"size"`
	Justification  string `json:"justification"`
}

// ApprovedPayload is emitted by ApproveRequest. The decision timestamp is
// taken from the stored event's metadata, not carried here.
type ApprovedPayload struct {
	DecidedBy string `json:"decided_by"`
}

// RejectedPayload is emitted by RejectRequest.
type RejectedPayload struct {
	DecidedBy       string `json:"decided_by"`
	RejectionReason string `json:"rejection_reason"`
}

// CancelledPayload is emitted by CancelRequest. It carries no fields; the
// cancellation timestamp comes from event metadata.
type CancelledPayload struct{}

// ProvisioningStartedPayload is emitted by MarkProvisioning.
type ProvisioningStartedPayload struct{}

// ReadyPayload is emitted by MarkReady.
type ReadyPayload struct {
	VmwareVMID string `json:"vmware_vm_id"`
	IPAddress  string `json:"ip_address"`
	Hostname   string `json:"hostname"`
}

// FailedPayload is emitted by MarkFailed.
type FailedPayload struct {
	Reason string `json:"reason"`
}
