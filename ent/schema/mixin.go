// Package schema contains Ent schema definitions for the read-model
// (projection) side of the control plane. The event store itself is not an
// Ent schema — see internal/eventstore/sqlc — these schemas back only the
// derived, rebuildable read tables.
package schema

import (
	"time"

	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/mixin"
)

// TimeMixin adds created_at and updated_at fields to schemas.
// Ent best practice: use mixin for shared timestamp fields.
type TimeMixin struct {
	mixin.Schema
}

// Fields of the TimeMixin.
func (TimeMixin) Fields() []ent.Field {
	return []ent.Field{
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
		field.Time("updated_at").
			Default(time.Now).
			UpdateDefault(time.Now),
	}
}

// AuditMixin adds created_at (immutable, no updated_at) for append-only tables.
type AuditMixin struct {
	mixin.Schema
}

// Fields of the AuditMixin.
func (AuditMixin) Fields() []ent.Field {
	return []ent.Field{
		field.Time("created_at").
			Default(time.Now).
			Immutable(),
	}
}

// TenantMixin adds the tenant_id column every projection row carries.
// This mixin only guarantees the column exists. The Row Level Security
// policies in internal/eventstore/sqlc/schema.sql cover the events and
// snapshots tables only; projection tables have no RLS policy, and reads
// are scoped by the tenant_id filters in internal/query/repository.
type TenantMixin struct {
	mixin.Schema
}

// Fields of the TenantMixin.
func (TenantMixin) Fields() []ent.Field {
	return []ent.Field{
		field.String("tenant_id").
			NotEmpty().
			Immutable(),
	}
}
