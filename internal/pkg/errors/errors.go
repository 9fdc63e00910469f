// Package errors provides the structured error taxonomy for the control
// plane. Every boundary (command handler, query handler, projection
// subscriber, orchestrator) returns an *AppError instead of an opaque
// error or a panic; the taxonomy is closed over the Kind enum below.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a machine-readable taxonomy of error categories, matching the
// error handling design: Validation, Unauthorized, Forbidden, NotFound,
// InvalidState, ConcurrencyConflict, TenantMismatch, QuotaExceeded,
// HypervisorError, PersistenceFailure, NotificationFailure, Cancelled.
type Kind string

const (
	KindValidation          Kind = "VALIDATION"
	KindUnauthorized        Kind = "UNAUTHORIZED"
	KindForbidden           Kind = "FORBIDDEN"
	KindNotFound            Kind = "NOT_FOUND"
	KindInvalidState        Kind = "INVALID_STATE"
	KindConcurrencyConflict Kind = "CONCURRENCY_CONFLICT"
	KindTenantMismatch      Kind = "TENANT_MISMATCH"
	KindQuotaExceeded       Kind = "QUOTA_EXCEEDED"
	KindHypervisorError     Kind = "HYPERVISOR_ERROR"
	KindPersistenceFailure  Kind = "PERSISTENCE_FAILURE"
	KindNotificationFailure Kind = "NOTIFICATION_FAILURE"
	KindCancelled           Kind = "CANCELLED"
)

// httpStatusByKind is the recommended status-code mapping. TenantMismatch
// maps to 404 deliberately (enumeration safety): callers must never be
// able to distinguish "wrong tenant" from "does not exist".
var httpStatusByKind = map[Kind]int{
	KindValidation:          http.StatusBadRequest,
	KindUnauthorized:        http.StatusUnauthorized,
	KindForbidden:           http.StatusNotFound,
	KindNotFound:            http.StatusNotFound,
	KindInvalidState:        http.StatusUnprocessableEntity,
	KindConcurrencyConflict: http.StatusConflict,
	KindTenantMismatch:      http.StatusNotFound,
	KindQuotaExceeded:       http.StatusConflict,
	KindHypervisorError:     http.StatusBadGateway,
	KindPersistenceFailure:  http.StatusInternalServerError,
	KindNotificationFailure: http.StatusInternalServerError,
	KindCancelled:           499,
}

// AppError is a structured application error carrying its taxonomy Kind,
// a machine-readable Code, a human Message, the recommended HTTP status
// for whichever edge layer consumes it, and the wrapped cause.
type AppError struct {
	Kind       Kind   `json:"kind"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s/%s: %s: %v", e.Kind, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s/%s: %s", e.Kind, e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates an AppError of the given kind with no wrapped cause.
func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusByKind[kind],
	}
}

// Wrap creates an AppError of the given kind wrapping an existing error.
func Wrap(err error, kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:       kind,
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatusByKind[kind],
		Err:        err,
	}
}

// IsAppError reports whether err is (or wraps) an *AppError.
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is reports whether err is an AppError of the given Kind.
func Is(err error, kind Kind) bool {
	appErr, ok := IsAppError(err)
	return ok && appErr.Kind == kind
}
