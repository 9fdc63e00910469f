// Package eventstore implements the append-only, per-aggregate versioned,
// tenant-scoped event log (C2): optimistic concurrency via
// (aggregate_id, version), a cross-aggregate global_sequence, and
// snapshotting. The store treats event payloads as opaque bytes — only
// the codec package (internal/codec) knows their shape.
package eventstore

import "time"

// AggregateType discriminates which state machine an aggregate_id belongs to.
type AggregateType string

const (
	AggregateVmRequest AggregateType = "VmRequest"
	AggregateVm        AggregateType = "Vm"
)

// Metadata is carried on every stored event, informational except for
// tenant_id and correlation_id which participate in isolation and tracing.
type Metadata struct {
	TenantID      string
	UserID        string
	CorrelationID string
	OccurredAt    time.Time
}

// Event is the input shape passed to Append — not yet assigned a version
// or global_sequence.
type Event struct {
	EventType string
	Payload   []byte
	Metadata  Metadata
}

// StoredEvent is a durable, ordered record in the log.
type StoredEvent struct {
	EventID        string
	AggregateID    string
	AggregateType  AggregateType
	Version        int64
	EventType      string
	Payload        []byte
	Metadata       Metadata
	GlobalSequence int64
}

// Snapshot is a point-in-time materialization of an aggregate's state,
// equivalent to replaying events 1..Version from empty.
type Snapshot struct {
	AggregateID string
	Version     int64
	Payload     []byte
	CreatedAt   time.Time
}
