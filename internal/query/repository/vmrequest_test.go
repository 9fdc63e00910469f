package repository

import (
	"context"
	"testing"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/vmrequestprojection"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/tenant"
	"vcenterprovision.io/controlplane/internal/testutil"
)

func init() {
	_ = logger.Init("error", "json")
}

func seedRequest(t *testing.T, client *ent.Client, id, tenantID, projectID, projectName, requesterID, status string) {
	t.Helper()
	_, err := client.VMRequestProjection.Create().
		SetID(id).
		SetTenantID(tenantID).
		SetProjectID(projectID).
		SetProjectName(projectName).
		SetRequesterID(requesterID).
		SetRequesterEmail(requesterID + "@example.com").
		SetVmName("vm-" + id).
		SetSize(vmrequestprojection.SizeM).
		SetJustification("testing").
		SetStatus(vmrequestprojection.Status(status)).
		Save(context.Background())
	if err != nil {
		t.Fatalf("seed request %s: %v", id, err)
	}
}

func TestVmRequestRepository_FindMyRequests(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "repo_find_my_requests")
	repo := NewVmRequestRepository(client)

	seedRequest(t, client, "req-1", "tenant-a", "proj-1", "Payments", "user-1", "PENDING")
	seedRequest(t, client, "req-2", "tenant-a", "proj-1", "Payments", "user-1", "APPROVED")
	seedRequest(t, client, "req-3", "tenant-a", "proj-1", "Payments", "user-2", "PENDING")
	seedRequest(t, client, "req-4", "tenant-b", "proj-2", "Other", "user-1", "PENDING")

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	items, total, err := repo.FindMyRequests(ctx, 0, 10)
	if err != nil {
		t.Fatalf("FindMyRequests: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}
	if len(items) != 2 {
		t.Fatalf("len(items) = %d, want 2", len(items))
	}
	for _, item := range items {
		if item.RequesterID != "user-1" {
			t.Fatalf("item requester = %s, want user-1", item.RequesterID)
		}
	}
}

func TestVmRequestRepository_FindPendingByTenant_RequiresAdmin(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "repo_find_pending_admin")
	repo := NewVmRequestRepository(client)

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	if _, _, err := repo.FindPendingByTenant(ctx, "", 0, 10); err == nil {
		t.Fatal("expected an error for a non-admin caller")
	}
}

func TestVmRequestRepository_FindPendingByTenant(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "repo_find_pending")
	repo := NewVmRequestRepository(client)

	seedRequest(t, client, "req-1", "tenant-a", "proj-1", "Payments", "user-1", "PENDING")
	seedRequest(t, client, "req-2", "tenant-a", "proj-2", "Infra", "user-2", "PENDING")
	seedRequest(t, client, "req-3", "tenant-a", "proj-1", "Payments", "user-3", "APPROVED")

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "admin-1", Roles: []string{"admin"}})

	items, total, err := repo.FindPendingByTenant(ctx, "", 0, 10)
	if err != nil {
		t.Fatalf("FindPendingByTenant: %v", err)
	}
	if total != 2 {
		t.Fatalf("total = %d, want 2", total)
	}

	items, total, err = repo.FindPendingByTenant(ctx, "proj-1", 0, 10)
	if err != nil {
		t.Fatalf("FindPendingByTenant scoped: %v", err)
	}
	if total != 1 || len(items) != 1 {
		t.Fatalf("total/items = %d/%d, want 1/1", total, len(items))
	}
}

func TestVmRequestRepository_FindDetail_OwnerSeesItAdminSeesItStrangerDoesNot(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "repo_find_detail")
	repo := NewVmRequestRepository(client)

	seedRequest(t, client, "req-1", "tenant-a", "proj-1", "Payments", "user-1", "PENDING")

	ownerCtx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	if detail, err := repo.FindDetail(ownerCtx, "req-1"); err != nil {
		t.Fatalf("owner FindDetail: %v", err)
	} else if detail.RequestID != "req-1" {
		t.Fatalf("detail.RequestID = %s", detail.RequestID)
	}

	adminCtx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "admin-1", Roles: []string{"admin"}})
	if _, err := repo.FindDetail(adminCtx, "req-1"); err != nil {
		t.Fatalf("admin FindDetail: %v", err)
	}

	strangerCtx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-2"})
	_, strangerErr := repo.FindDetail(strangerCtx, "req-1")
	if strangerErr == nil {
		t.Fatal("expected an error for a non-owner, non-admin caller")
	}

	missingErr := func() error {
		_, err := repo.FindDetail(strangerCtx, "req-does-not-exist")
		return err
	}()
	if missingErr == nil {
		t.Fatal("expected an error for a nonexistent request")
	}
	if strangerErr.Error() != missingErr.Error() {
		t.Fatalf("forbidden error %q must be indistinguishable from not-found error %q (enumeration safety)",
			strangerErr.Error(), missingErr.Error())
	}
}

func TestVmRequestRepository_FindDistinctProjects(t *testing.T) {
	client := testutil.OpenEntPostgres(t, "repo_find_projects")
	repo := NewVmRequestRepository(client)

	seedRequest(t, client, "req-1", "tenant-a", "proj-1", "Payments", "user-1", "PENDING")
	seedRequest(t, client, "req-2", "tenant-a", "proj-1", "Payments", "user-2", "APPROVED")
	seedRequest(t, client, "req-3", "tenant-a", "proj-2", "Infra", "user-1", "PENDING")
	seedRequest(t, client, "req-4", "tenant-b", "proj-3", "Other", "user-1", "PENDING")

	ctx := tenant.WithContext(context.Background(), tenant.Scope{TenantID: "tenant-a", UserID: "user-1"})
	projects, err := repo.FindDistinctProjects(ctx)
	if err != nil {
		t.Fatalf("FindDistinctProjects: %v", err)
	}
	if len(projects) != 2 {
		t.Fatalf("len(projects) = %d, want 2", len(projects))
	}
}
