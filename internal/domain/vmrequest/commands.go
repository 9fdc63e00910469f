package vmrequest

// Command is the marker interface for every VmRequest command. Decide
// type-switches on the concrete type.
type Command interface {
	isVmRequestCommand()
}

// CreateVmRequest submits a new VM request. The command handler fills
// RequesterID from the caller's tenant scope; every other field comes from
// the handler's input.
type CreateVmRequest struct {
	ProjectID      string `validate:"required"`
	ProjectName    string `validate:"required"`
	RequesterID    string `validate:"required"`
	RequesterEmail string `validate:"required,email"`
	VmName         string `validate:"required,min=3,max=63,vmname"`
	Size           string `validate:"required,oneof=S M L XL"`
	Justification  string `validate:"required,min=10"`
}

func (CreateVmRequest) isVmRequestCommand() {}

// ApproveRequest approves a PENDING request. ActorID must differ from the
// request's RequesterID.
type ApproveRequest struct {
	ActorID string `validate:"required"`
}

func (ApproveRequest) isVmRequestCommand() {}

// RejectRequest rejects a PENDING request with a reason.
type RejectRequest struct {
	ActorID string `validate:"required"`
	Reason  string `validate:"required,min=10,max=500"`
}

func (RejectRequest) isVmRequestCommand() {}

// CancelRequest cancels a PENDING request. ActorID must equal the
// request's RequesterID.
type CancelRequest struct {
	ActorID string `validate:"required"`
}

func (CancelRequest) isVmRequestCommand() {}

// MarkProvisioning transitions an APPROVED request into PROVISIONING.
// Issued by the provisioning orchestrator's worker, not by an end user.
type MarkProvisioning struct{}

func (MarkProvisioning) isVmRequestCommand() {}

// MarkReady records a successful provisioning outcome.
type MarkReady struct {
	VmwareVMID string `validate:"required"`
	IPAddress  string `validate:"required"`
	Hostname   string `validate:"required"`
}

func (MarkReady) isVmRequestCommand() {}

// MarkFailed records a provisioning failure.
type MarkFailed struct {
	Reason string `validate:"required"`
}

func (MarkFailed) isVmRequestCommand() {}
