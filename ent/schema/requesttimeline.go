package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// RequestTimeline holds one append-only row per lifecycle event for a
// VmRequest, projected for audit/history display. Idempotent on
// (request_id, event_id) so at-least-once delivery never duplicates a row.
type RequestTimeline struct {
	ent.Schema
}

// Mixin of the RequestTimeline.
func (RequestTimeline) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		AuditMixin{},
	}
}

// Fields of the RequestTimeline.
func (RequestTimeline) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("event_id").
			NotEmpty().
			Immutable(), // source StoredEvent.EventID, for idempotent upsert
		field.String("request_id").
			NotEmpty().
			Immutable(),
		field.String("event_type").
			NotEmpty().
			Immutable(),
		field.String("actor_name").
			Optional().
			Immutable(),
		field.String("details").
			Optional().
			Immutable(),
		field.Time("occurred_at").
			Immutable(),
	}
}

// Indexes of the RequestTimeline.
func (RequestTimeline) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("event_id").Unique(),
		index.Fields("request_id", "occurred_at"),
	}
}
