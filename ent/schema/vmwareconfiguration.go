package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"
)

// VMwareConfiguration holds the per-tenant vCenter connection settings
// consulted by the provisioning orchestrator. The password is stored
// ciphertext-verbatim; encryption/decryption happens through the
// credential encryption port (internal/hypervisor.CredentialCipher),
// out of scope for this repository to implement for real.
type VMwareConfiguration struct {
	ent.Schema
}

// Mixin of the VMwareConfiguration.
func (VMwareConfiguration) Mixin() []ent.Mixin {
	return []ent.Mixin{
		TenantMixin{},
		TimeMixin{},
	}
}

// Fields of the VMwareConfiguration.
func (VMwareConfiguration) Fields() []ent.Field {
	return []ent.Field{
		field.String("id").
			Unique().
			Immutable(),
		field.String("vcenter_url").
			NotEmpty(),
		field.String("username").
			NotEmpty(),
		field.String("encrypted_password").
			NotEmpty().
			Sensitive(),
		field.String("datacenter").
			NotEmpty(),
		field.String("cluster").
			NotEmpty(),
		field.String("datastore").
			NotEmpty(),
		field.String("network").
			NotEmpty(),
		field.String("template").
			NotEmpty(),
		field.Bool("insecure_skip_verify").
			Default(false),
		field.Time("verified_at").
			Optional().
			Nillable(),
		field.Int("version").
			Default(0), // optimistic locking on configuration updates
	}
}

// Indexes of the VMwareConfiguration.
func (VMwareConfiguration) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("tenant_id").Unique(),
	}
}
