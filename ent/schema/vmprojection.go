package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// VMProjection holds the denormalized read model for a Vm aggregate.
// Created and updated by the projection engine's VmProjectionSubscriber as
// the Vm aggregate's own events are projected.
type VMProjection struct {
	ent.Schema
}

// Mixin of the VMProjection.
func (VMProjection) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		TimeMixin{},
	}
}

// Fields of the VMProjection.
func (VMProjection) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(), // VmId
		field.String("request_id").
			NotEmpty().
			Immutable(), // back-reference to VmRequestId, by id only
		field.String("vmware_vm_id").
			Optional(),
		field.String("ip_address").
			Optional(),
		field.String("hostname").
			Optional(),
		field.String("power_state").
			Optional(),
		field.String("guest_os").
			Optional(),
		field.Time("last_synced_at").
			Optional().
			Nillable(),
		field.Enum("status").
			Values("PROVISIONING", "PROVISIONED", "FAILED").
			Default("PROVISIONING"),
		field.Int64("version").
			Default(0),
	}
}

// Indexes of the VMProjection.
func (VMProjection) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("request_id").Unique(),
		index.Fields("tenant_id", "status"),
	}
}
