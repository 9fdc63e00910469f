// Package query implements the query handler layer (C12): thin handlers
// that validate inputs, delegate to the read repositories (C10), and
// translate rows into response shapes. No handler ever talks to Ent
// directly — internal/query/repository does.
package query

import (
	"context"

	"vcenterprovision.io/controlplane/internal/query/repository"
)

// ListMyRequestsInput is the paging input for ListMyRequestsHandler.
type ListMyRequestsInput struct {
	Page int
	Size int
}

// ListMyRequestsOutput is a paged listing of the caller's own requests.
type ListMyRequestsOutput struct {
	Items []repository.VmRequestSummary
	Page  int
	Size  int
	Total int
}

// ListMyRequestsHandler handles find_my_requests.
type ListMyRequestsHandler struct {
	repo *repository.VmRequestRepository
}

// NewListMyRequestsHandler constructs a ListMyRequestsHandler.
func NewListMyRequestsHandler(repo *repository.VmRequestRepository) *ListMyRequestsHandler {
	return &ListMyRequestsHandler{repo: repo}
}

// Execute lists the caller's own requests, newest first.
func (h *ListMyRequestsHandler) Execute(ctx context.Context, input ListMyRequestsInput) (*ListMyRequestsOutput, error) {
	page := input.Page
	if page < 0 {
		page = 0
	}
	size := repository.ClampPageSize(input.Size)

	items, total, err := h.repo.FindMyRequests(ctx, page, size)
	if err != nil {
		return nil, err
	}
	return &ListMyRequestsOutput{Items: items, Page: page, Size: size, Total: total}, nil
}

// ListPendingInput is the input for ListPendingHandler.
type ListPendingInput struct {
	ProjectID string
	Page      int
	Size      int
}

// ListPendingOutput is a paged listing of pending requests across the tenant.
type ListPendingOutput struct {
	Items []repository.VmRequestSummary
	Page  int
	Size  int
	Total int
}

// ListPendingHandler handles find_pending_by_tenant. Admin-only; the
// repository itself enforces that via tenant.Scope.IsAdmin.
type ListPendingHandler struct {
	repo *repository.VmRequestRepository
}

// NewListPendingHandler constructs a ListPendingHandler.
func NewListPendingHandler(repo *repository.VmRequestRepository) *ListPendingHandler {
	return &ListPendingHandler{repo: repo}
}

// Execute lists PENDING requests across the tenant, optionally narrowed
// to one project.
func (h *ListPendingHandler) Execute(ctx context.Context, input ListPendingInput) (*ListPendingOutput, error) {
	page := input.Page
	if page < 0 {
		page = 0
	}
	size := repository.ClampPageSize(input.Size)

	items, total, err := h.repo.FindPendingByTenant(ctx, input.ProjectID, page, size)
	if err != nil {
		return nil, err
	}
	return &ListPendingOutput{Items: items, Page: page, Size: size, Total: total}, nil
}

// GetRequestDetailHandler handles find_detail.
type GetRequestDetailHandler struct {
	repo *repository.VmRequestRepository
}

// NewGetRequestDetailHandler constructs a GetRequestDetailHandler.
func NewGetRequestDetailHandler(repo *repository.VmRequestRepository) *GetRequestDetailHandler {
	return &GetRequestDetailHandler{repo: repo}
}

// Execute returns one request's full detail, or a NotFound error — the
// repository itself collapses an ownership mismatch into the same
// NotFound a nonexistent id would produce.
func (h *GetRequestDetailHandler) Execute(ctx context.Context, requestID string) (*repository.VmRequestDetail, error) {
	return h.repo.FindDetail(ctx, requestID)
}

// ListProjectsHandler handles find_distinct_projects.
type ListProjectsHandler struct {
	repo *repository.VmRequestRepository
}

// NewListProjectsHandler constructs a ListProjectsHandler.
func NewListProjectsHandler(repo *repository.VmRequestRepository) *ListProjectsHandler {
	return &ListProjectsHandler{repo: repo}
}

// Execute lists the distinct projects the tenant has submitted requests for.
func (h *ListProjectsHandler) Execute(ctx context.Context) ([]repository.ProjectSummary, error) {
	return h.repo.FindDistinctProjects(ctx)
}
