package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// PoisonEvent records an event a projection subscriber could not apply
// after exhausting its retry budget. The subscriber's cursor advances past
// it regardless; operators query this table to investigate and, if fixed,
// manually re-drive the event.
type PoisonEvent struct {
	ent.Schema
}

// Mixin of the PoisonEvent.
func (PoisonEvent) Mixin() []ent.Mixin {
	return []ent.Mixin{
		AuditMixin{},
	}
}

// Fields of the PoisonEvent.
func (PoisonEvent) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("subscriber_name").
			NotEmpty().
			Immutable(),
		field.Int64("global_sequence").
			Immutable(),
		field.String("aggregate_id").
			Immutable(),
		field.String("event_type").
			Immutable(),
		field.String("error").
			Immutable(),
		field.Int("attempts").
			Default(0),
	}
}

// Indexes of the PoisonEvent.
func (PoisonEvent) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("subscriber_name", "global_sequence").Unique(),
	}
}
