package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// Notification holds the schema definition for the Notification entity.
// In-app inbox only; best-effort writes produced by the notification
// dispatcher projection subscriber (internal/notification). Recipients are
// referenced by id only — identity is an external collaborator, so there
// is no local User entity to edge against.
type Notification struct {
	ent.Schema
}

// Mixin of the Notification.
func (Notification) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		AuditMixin{}, // notifications are append-only
	}
}

// Fields of the Notification.
func (Notification) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("recipient_user_id").
			NotEmpty().
			Immutable(),
		field.Enum("type").
			Values(
				"REQUEST_SUBMITTED",
				"REQUEST_APPROVED",
				"REQUEST_REJECTED",
				"REQUEST_READY",
				"REQUEST_FAILED",
			).
			Immutable(),
		field.String("title").
			NotEmpty().
			MaxLen(255).
			Immutable(),
		field.String("message").
			NotEmpty().
			MaxLen(2048).
			Immutable(),
		field.String("resource_type").
			Optional().
			Immutable(),
		field.String("resource_id").
			Optional().
			Immutable(),
		field.Bool("read").
			Default(false),
		field.Time("read_at").
			Optional().
			Nillable(),
	}
}

// Indexes of the Notification.
func (Notification) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "recipient_user_id", "read"),
		index.Fields("tenant_id", "recipient_user_id", "created_at"),
	}
}
