package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// VMProvisioningProgress is a mutable single row per in-flight request,
// maintained by the projection engine's ProvisioningProgressSubscriber from
// the Vm aggregate's events: created when provisioning starts, updated on
// each progress report, and deleted once the Vm is provisioned or its
// provisioning fails.
type VMProvisioningProgress struct {
	ent.Schema
}

// Mixin of the VMProvisioningProgress.
func (VMProvisioningProgress) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		TimeMixin{},
	}
}

// Fields of the VMProvisioningProgress.
func (VMProvisioningProgress) Fields() []ent.Field {
	return []ent.Field{
		field.String("request_id").
			Unique().
			Immutable(),
		field.String("vm_id").
			Unique().
			Immutable(), // lets the subscriber resolve request_id from later Vm events keyed by vm id
		field.String("stage").
			NotEmpty(), // CLONING | CONFIGURING | POWERING_ON | WAITING_FOR_NETWORK | READY
		field.JSON("stage_timestamps", map[string]string{}).
			Optional(), // stage name -> RFC3339 timestamp, accumulated
		field.Int("estimated_remaining_seconds").
			Default(0),
	}
}

// Indexes of the VMProvisioningProgress.
func (VMProvisioningProgress) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("request_id").Unique(),
		index.Fields("vm_id").Unique(),
		index.Fields("tenant_id"),
	}
}
