// Package tenant carries the current tenant identity across every call,
// including async handoffs (goroutine pool submissions, River job
// enqueue/dequeue). Go has no ambient/thread-local scope, so the scope is
// an explicit value on context.Context, propagated automatically within a
// single call chain and re-established explicitly at queue boundaries.
package tenant

import (
	"context"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

type contextKey struct{}

var scopeKey contextKey

// Scope is the tenant identity carried through a call chain.
type Scope struct {
	TenantID string
	UserID   string
	Roles    []string
}

// IsAdmin reports whether the scope carries the admin role.
func (s Scope) IsAdmin() bool {
	for _, r := range s.Roles {
		if r == "admin" {
			return true
		}
	}
	return false
}

// WithContext returns a new context carrying the given tenant scope.
func WithContext(ctx context.Context, scope Scope) context.Context {
	return context.WithValue(ctx, scopeKey, scope)
}

// FromContext returns the current tenant scope. Returns TenantMissing if
// no scope was established — every command handler, query handler,
// projection handler, and orchestrator callback must run inside one.
func FromContext(ctx context.Context) (Scope, error) {
	scope, ok := ctx.Value(scopeKey).(Scope)
	if !ok || scope.TenantID == "" {
		return Scope{}, apperrors.ErrTenantMissing()
	}
	return scope, nil
}

// MustFromContext is FromContext but panics on a missing scope. Reserved
// for code paths that have already asserted the scope is present (e.g.
// immediately after WithContext), never for request-entry code.
func MustFromContext(ctx context.Context) Scope {
	scope, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return scope
}
