package tenant

import (
	"context"
	"testing"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

func TestFromContext_Missing(t *testing.T) {
	_, err := FromContext(context.Background())
	appErr, ok := apperrors.IsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if appErr.Code != apperrors.CodeTenantMissing {
		t.Errorf("Code = %q, want %q", appErr.Code, apperrors.CodeTenantMissing)
	}
}

func TestWithContext_RoundTrip(t *testing.T) {
	want := Scope{TenantID: "t1", UserID: "u1", Roles: []string{"admin"}}
	ctx := WithContext(context.Background(), want)

	got, err := FromContext(ctx)
	if err != nil {
		t.Fatalf("FromContext() error = %v", err)
	}
	if got.TenantID != want.TenantID || got.UserID != want.UserID {
		t.Errorf("got %+v, want %+v", got, want)
	}
	if !got.IsAdmin() {
		t.Error("expected IsAdmin() to be true")
	}
}

func TestScope_IsAdmin_False(t *testing.T) {
	scope := Scope{TenantID: "t1", UserID: "u1", Roles: []string{"member"}}
	if scope.IsAdmin() {
		t.Error("expected IsAdmin() to be false")
	}
}

// TestPropagationAcrossGoroutine verifies the scope survives a handoff to
// a new goroutine carrying the same context — the "automatic propagation
// within a call chain" half of the tenant contract.
func TestPropagationAcrossGoroutine(t *testing.T) {
	want := Scope{TenantID: "t1", UserID: "u1"}
	ctx := WithContext(context.Background(), want)

	done := make(chan Scope, 1)
	go func(ctx context.Context) {
		got, err := FromContext(ctx)
		if err != nil {
			close(done)
			return
		}
		done <- got
	}(ctx)

	got := <-done
	if got.TenantID != want.TenantID {
		t.Errorf("tenant did not propagate across goroutine handoff: got %+v", got)
	}
}
