package eventstore

import "context"

// Store is the event store contract (C2). Every operation is tenant-scoped
// by the caller's context.Context (see internal/tenant); implementations
// MUST additionally enforce tenant scoping at the storage layer itself —
// a compromised application layer must not be able to read another
// tenant's events.
type Store interface {
	// Append writes events atomically, assigning versions
	// expectedVersion+1 .. expectedVersion+len(events). Fails with
	// ConcurrencyConflict if the stored version does not equal
	// expectedVersion, or TenantMismatch if the events' tenant_id
	// disagrees with the aggregate's existing tenant. Returns the new
	// version after the append. PgStore does not report TenantMismatch:
	// RLS hides another tenant's rows, so an append to an aggregate id
	// that tenant already owns fails on the (aggregate_id, version)
	// unique constraint and surfaces as ConcurrencyConflict.
	Append(ctx context.Context, aggregateID string, aggregateType AggregateType, tenantID string, events []Event, expectedVersion int64) (int64, error)

	// Load returns all events for aggregateID under tenantID, ordered by
	// version ascending. A mismatched tenant is indistinguishable from
	// "no such aggregate": implementations must filter on tenantID both
	// in the query itself and via the database's own RLS policy, so a
	// caller who somehow passes the wrong tenant never sees another
	// tenant's events by accident.
	Load(ctx context.Context, aggregateID, tenantID string) ([]StoredEvent, error)

	// LoadFromSnapshot returns the latest snapshot (if any) plus the
	// events recorded after it, both filtered to tenantID.
	LoadFromSnapshot(ctx context.Context, aggregateID, tenantID string) (*Snapshot, []StoredEvent, error)

	// SaveSnapshot idempotently replaces or inserts the snapshot for
	// aggregateID at the given version, under tenantID.
	SaveSnapshot(ctx context.Context, aggregateID string, version int64, payload []byte, tenantID string) error

	// ReadFrom returns up to batchSize events with global_sequence
	// strictly greater than afterGlobalSequence, across all tenants, in
	// ascending order — the projection subscription primitive.
	ReadFrom(ctx context.Context, afterGlobalSequence int64, batchSize int) ([]StoredEvent, error)
}
