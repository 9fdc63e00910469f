package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// VMRequestProjection holds the denormalized read model for a VmRequest
// aggregate. Rebuilt entirely from VmRequest lifecycle events by the
// projection engine; never written to directly by command handlers.
type VMRequestProjection struct {
	ent.Schema
}

// Mixin of the VMRequestProjection.
func (VMRequestProjection) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		TimeMixin{},
	}
}

// Fields of the VMRequestProjection.
func (VMRequestProjection) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(), // VmRequestId
		field.String("project_id").
			NotEmpty(),
		field.String("project_name").
			NotEmpty(),
		field.String("requester_id").
			NotEmpty(),
		field.String("requester_email").
			NotEmpty(),
		field.String("vm_name").
			NotEmpty(),
		field.Enum("size").
			Values("S", "M", "L", "XL"),
		field.String("justification").
			NotEmpty(),
		field.Enum("status").
			Values(
				"PENDING",
				"APPROVED",
				"REJECTED",
				"CANCELLED",
				"PROVISIONING",
				"READY",
				"FAILED",
			).
			Default("PENDING"),
		field.String("decided_by").
			Optional(),
		field.Time("decided_at").
			Optional().
			Nillable(),
		field.Time("cancelled_at").
			Optional().
			Nillable(),
		field.String("rejection_reason").
			Optional(),
		field.String("vmware_vm_id").
			Optional(),
		field.String("ip_address").
			Optional(),
		field.String("hostname").
			Optional(),
		field.Int64("version").
			Default(0), // last VmRequest event version reflected in this row
	}
}

// Indexes of the VMRequestProjection.
func (VMRequestProjection) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id", "requester_id", "created_at"),
		index.Fields("tenant_id", "status", "created_at"),
		index.Fields("tenant_id", "project_id"),
	}
}
