// Package repository implements the read repositories (C10): paged,
// tenant-scoped queries over the projection tables built by C8. No
// repository method ever writes; every method runs under a tenant
// context and filters on tenant_id itself. The projection tables carry no
// row-level security policy, so these filters are the only tenant
// boundary on the read side (see ent/schema/mixin.go's TenantMixin).
package repository

import (
	"context"

	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/requesttimeline"
	"vcenterprovision.io/controlplane/ent/vmprovisioningprogress"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
)

const (
	minPageSize     = 1
	maxPageSize     = 100
	defaultPageSize = 20
)

// ClampPageSize enforces spec's [1, 100] page size bound.
func ClampPageSize(size int) int {
	if size < minPageSize {
		if size == 0 {
			return defaultPageSize
		}
		return minPageSize
	}
	if size > maxPageSize {
		return maxPageSize
	}
	return size
}

// VmRequestSummary is one row of a paged request listing.
type VmRequestSummary struct {
	RequestID   string
	ProjectID   string
	ProjectName string
	VmName      string
	Size        string
	Status      string
	RequesterID string
	CreatedAt   string
}

// ProgressSummary mirrors the in-flight VMProvisioningProgress row, when
// one exists for the request.
type ProgressSummary struct {
	Stage                     string
	StageTimestamps           map[string]string
	EstimatedRemainingSeconds int
}

// TimelineEntry is one RequestTimeline row.
type TimelineEntry struct {
	EventType  string
	ActorName  string
	Details    string
	OccurredAt string
}

// VmRequestDetail is the full read model for a single request.
type VmRequestDetail struct {
	VmRequestSummary
	Justification string
	DecidedBy     string
	RejectReason  string
	VmwareVMID    string
	IPAddress     string
	Hostname      string
	Progress      *ProgressSummary
	Timeline      []TimelineEntry
}

// ProjectSummary is one row of find_distinct_projects.
type ProjectSummary struct {
	ProjectID   string
	ProjectName string
}

// VmRequestRepository implements find_my_requests, find_pending_by_tenant,
// find_detail and find_distinct_projects (spec.md 4.10).
type VmRequestRepository struct {
	ent *ent.Client
}

// NewVmRequestRepository constructs a VmRequestRepository.
func NewVmRequestRepository(entClient *ent.Client) *VmRequestRepository {
	return &VmRequestRepository{ent: entClient}
}

// FindMyRequests returns the caller's own requests, newest first.
func (r *VmRequestRepository) FindMyRequests(ctx context.Context, page, size int) ([]VmRequestSummary, int, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	size = ClampPageSize(size)
	if page < 0 {
		page = 0
	}

	query := r.ent.VMRequestProjection.Query().
		Where(
			vmrequestprojection.TenantIDEQ(scope.TenantID),
			vmrequestprojection.RequesterIDEQ(scope.UserID),
		)

	total, err := query.Clone().Count(ctx)
	if err != nil {
		return nil, 0, apperrors.ErrPersistence(err)
	}

	rows, err := query.
		Order(ent.Desc(vmrequestprojection.FieldCreatedAt)).
		Offset(page * size).
		Limit(size).
		All(ctx)
	if err != nil {
		return nil, 0, apperrors.ErrPersistence(err)
	}

	return toSummaries(rows), total, nil
}

// FindPendingByTenant lists PENDING requests across the whole tenant,
// optionally narrowed to one project. Admin-only.
func (r *VmRequestRepository) FindPendingByTenant(ctx context.Context, projectID string, page, size int) ([]VmRequestSummary, int, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, 0, err
	}
	if !scope.IsAdmin() {
		return nil, 0, apperrors.ErrAdminRequired()
	}
	size = ClampPageSize(size)
	if page < 0 {
		page = 0
	}

	query := r.ent.VMRequestProjection.Query().
		Where(
			vmrequestprojection.TenantIDEQ(scope.TenantID),
			vmrequestprojection.StatusEQ(vmrequestprojection.StatusPENDING),
		)
	if projectID != "" {
		query = query.Where(vmrequestprojection.ProjectIDEQ(projectID))
	}

	total, err := query.Clone().Count(ctx)
	if err != nil {
		return nil, 0, apperrors.ErrPersistence(err)
	}

	rows, err := query.
		Order(ent.Desc(vmrequestprojection.FieldCreatedAt)).
		Offset(page * size).
		Limit(size).
		All(ctx)
	if err != nil {
		return nil, 0, apperrors.ErrPersistence(err)
	}

	return toSummaries(rows), total, nil
}

// FindDetail returns one request's full detail. A non-admin caller who
// does not own the request gets the same NotFound a nonexistent request
// id would produce — never Forbidden — so a tenant cannot enumerate
// other users' request ids by probing for a 403 vs 404 distinction.
func (r *VmRequestRepository) FindDetail(ctx context.Context, requestID string) (*VmRequestDetail, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	row, err := r.ent.VMRequestProjection.Query().
		Where(
			vmrequestprojection.IDEQ(requestID),
			vmrequestprojection.TenantIDEQ(scope.TenantID),
		).
		Only(ctx)
	notFound := apperrors.New(apperrors.KindNotFound, apperrors.CodeVmRequestNotFound, "vm request not found")
	if err != nil {
		if ent.IsNotFound(err) {
			return nil, notFound
		}
		return nil, apperrors.ErrPersistence(err)
	}

	if !scope.IsAdmin() && row.RequesterID != scope.UserID {
		logger.Warn("tenant mismatch: caller does not own the requested vm request",
			zap.String("tenant_id", scope.TenantID),
			zap.String("user_id", scope.UserID),
			zap.String("request_id", requestID),
		)
		return nil, notFound
	}

	detail := &VmRequestDetail{
		VmRequestSummary: toSummary(row),
		Justification:    row.Justification,
		DecidedBy:        row.DecidedBy,
		RejectReason:     row.RejectionReason,
		VmwareVMID:       row.VmwareVMID,
		IPAddress:        row.IPAddress,
		Hostname:         row.Hostname,
	}

	if progress, err := r.ent.VMProvisioningProgress.Query().
		Where(vmprovisioningprogress.RequestIDEQ(requestID)).
		Only(ctx); err == nil {
		detail.Progress = &ProgressSummary{
			Stage:                     progress.Stage,
			StageTimestamps:           progress.StageTimestamps,
			EstimatedRemainingSeconds: progress.EstimatedRemainingSeconds,
		}
	} else if !ent.IsNotFound(err) {
		return nil, apperrors.ErrPersistence(err)
	}

	timeline, err := r.ent.RequestTimeline.Query().
		Where(requesttimeline.RequestIDEQ(requestID)).
		Order(ent.Asc(requesttimeline.FieldOccurredAt)).
		All(ctx)
	if err != nil {
		return nil, apperrors.ErrPersistence(err)
	}
	for _, t := range timeline {
		detail.Timeline = append(detail.Timeline, TimelineEntry{
			EventType:  t.EventType,
			ActorName:  t.ActorName,
			Details:    t.Details,
			OccurredAt: t.OccurredAt.Format(timeFormat),
		})
	}

	return detail, nil
}

// FindDistinctProjects lists the distinct (project_id, project_name)
// pairs the tenant has submitted requests for.
func (r *VmRequestRepository) FindDistinctProjects(ctx context.Context) ([]ProjectSummary, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ProjectID   string `json:"project_id"`
		ProjectName string `json:"project_name"`
	}
	err = r.ent.VMRequestProjection.Query().
		Where(vmrequestprojection.TenantIDEQ(scope.TenantID)).
		GroupBy(vmrequestprojection.FieldProjectID, vmrequestprojection.FieldProjectName).
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperrors.ErrPersistence(err)
	}

	out := make([]ProjectSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, ProjectSummary{ProjectID: row.ProjectID, ProjectName: row.ProjectName})
	}
	return out, nil
}

const timeFormat = "2006-01-02T15:04:05Z07:00"

func toSummary(row *ent.VMRequestProjection) VmRequestSummary {
	return VmRequestSummary{
		RequestID:   row.ID,
		ProjectID:   row.ProjectID,
		ProjectName: row.ProjectName,
		VmName:      row.VmName,
		Size:        string(row.Size),
		Status:      string(row.Status),
		RequesterID: row.RequesterID,
		CreatedAt:   row.CreatedAt.Format(timeFormat),
	}
}

func toSummaries(rows []*ent.VMRequestProjection) []VmRequestSummary {
	out := make([]VmRequestSummary, 0, len(rows))
	for _, row := range rows {
		out = append(out, toSummary(row))
	}
	return out
}
