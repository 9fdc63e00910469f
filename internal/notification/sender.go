// Package notification implements the notification dispatcher (C11): a
// projection subscriber that turns selected VmRequest lifecycle events into
// best-effort notification sends. A send failure is logged and dropped —
// it never feeds back into the projection engine's retry-then-poison path,
// since that path exists for write failures, not an unreachable transport.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	entnotification "vcenterprovision.io/controlplane/ent/notification"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
)

// Type constants matching ent/schema/notification.go's enum values.
const (
	TypeRequestSubmitted = "REQUEST_SUBMITTED"
	TypeRequestApproved  = "REQUEST_APPROVED"
	TypeRequestRejected  = "REQUEST_REJECTED"
	TypeRequestReady     = "REQUEST_READY"
	TypeRequestFailed    = "REQUEST_FAILED"
)

// Params holds the fields needed to send one notification.
type Params struct {
	TenantID     string
	RecipientID  string
	Type         string // one of the Type* constants above
	Title        string
	Message      string
	ResourceType string // e.g. "vm_request"
	ResourceID   string
}

// Sender is the notification port consumed by the dispatcher (spec.md §6's
// send_email-shaped external collaborator). An error return is logged by
// the caller and dropped — Send must never be retried by its caller.
type Sender interface {
	Send(ctx context.Context, params Params) error
}

// InboxSender writes notifications to the in-app inbox (ent.Notification).
// The production Sender: every tenant gets this regardless of whether an
// external transport (email, webhook) is also configured.
type InboxSender struct {
	client *ent.Client
}

// NewInboxSender constructs an InboxSender.
func NewInboxSender(client *ent.Client) *InboxSender {
	return &InboxSender{client: client}
}

// Send implements Sender.
func (s *InboxSender) Send(ctx context.Context, params Params) error {
	if err := validateParams(params); err != nil {
		return fmt.Errorf("notification params invalid: %w", err)
	}

	notifType, err := toEntType(params.Type)
	if err != nil {
		return err
	}

	_, err = s.client.Notification.Create().
		SetID(uuid.NewString()).
		SetTenantID(params.TenantID).
		SetRecipientUserID(params.RecipientID).
		SetType(notifType).
		SetTitle(params.Title).
		SetMessage(params.Message).
		SetResourceType(params.ResourceType).
		SetResourceID(params.ResourceID).
		SetRead(false).
		Save(ctx)
	if err != nil {
		return fmt.Errorf("create notification for user %s: %w", params.RecipientID, err)
	}

	logger.Debug("notification sent",
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)

	return nil
}

var _ Sender = (*InboxSender)(nil)

// NoopSender is the fallback used when no transport is configured. It logs
// at info level and never errors, matching the teacher's dev-mode
// "log instead of send" treatment of out-of-scope external collaborators.
type NoopSender struct{}

// Send implements Sender.
func (NoopSender) Send(_ context.Context, params Params) error {
	logger.Info("notification (no transport configured, logging only)",
		zap.String("tenant_id", params.TenantID),
		zap.String("recipient", params.RecipientID),
		zap.String("type", params.Type),
		zap.String("title", params.Title),
	)
	return nil
}

var _ Sender = NoopSender{}

func validateParams(p Params) error {
	if p.RecipientID == "" {
		return fmt.Errorf("recipient_id is required")
	}
	if p.Title == "" {
		return fmt.Errorf("title is required")
	}
	if p.Message == "" {
		return fmt.Errorf("message is required")
	}
	return nil
}

func toEntType(t string) (entnotification.Type, error) {
	switch t {
	case TypeRequestSubmitted:
		return entnotification.TypeREQUEST_SUBMITTED, nil
	case TypeRequestApproved:
		return entnotification.TypeREQUEST_APPROVED, nil
	case TypeRequestRejected:
		return entnotification.TypeREQUEST_REJECTED, nil
	case TypeRequestReady:
		return entnotification.TypeREQUEST_READY, nil
	case TypeRequestFailed:
		return entnotification.TypeREQUEST_FAILED, nil
	default:
		return "", fmt.Errorf("unknown notification type: %s", t)
	}
}
