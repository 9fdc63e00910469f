package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
)

// ProjectionCursor is the durable cursor for one projection subscriber,
// advanced atomically with the subscriber's own write. One row per
// subscriber name, global across tenants (the event log itself is the
// tenant-scoped resource; a subscriber tails all tenants).
type ProjectionCursor struct {
	ent.Schema
}

// Mixin of the ProjectionCursor.
func (ProjectionCursor) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TimeMixin{},
	}
}

// Fields of the ProjectionCursor.
func (ProjectionCursor) Fields() []ent.Field {
	return []ent.Field{
		field.String("subscriber_name").
			Unique().
			Immutable(),
		field.Int64("last_global_sequence").
			Default(0),
	}
}
