// Package aggregate implements the generic load/replay/append lifecycle
// (C4) shared by every aggregate type. It hides the event store and codec
// behind a typed interface so VmRequest and Vm only need to implement pure
// Apply/Decide functions.
package aggregate

import (
	"context"
	"time"

	"vcenterprovision.io/controlplane/internal/codec"
	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
	"vcenterprovision.io/controlplane/internal/tenant"

	"vcenterprovision.io/controlplane/internal/eventstore"
)

// Definition is the shape every aggregate type implements. S is the
// aggregate's state type, C is its command union type (typically an
// interface or `any` dispatched on by Decide).
type Definition[S any, C any] interface {
	// Empty returns the zero/initial state.
	Empty() S

	// Apply is a pure reducer used for replay: given the current state
	// and one stored event (already decoded by the caller into a typed
	// payload reachable via decoded), returns the next state.
	Apply(state S, eventType string, decodedPayload any, meta eventstore.Metadata) S

	// Decide is a pure function: given the current state, its version,
	// and a command, returns the events to append or a taxonomized
	// error. It never mutates state or talks to the store.
	Decide(state S, version int64, cmd C) ([]DecidedEvent, error)

	// AggregateType names which event-store partition this definition
	// belongs to ("VmRequest" | "Vm").
	AggregateType() eventstore.AggregateType
}

// DecidedEvent is an event produced by Decide, prior to codec encoding.
type DecidedEvent struct {
	EventType string
	Payload   any
}

// Runtime executes load -> decide -> append for one aggregate Definition.
type Runtime[S any, C any] struct {
	store             eventstore.Store
	codec             *codec.Registry
	def               Definition[S, C]
	maxRetries        int
	snapshotThreshold int64
}

// Config controls retry and snapshot behavior.
type Config struct {
	// MaxRetries bounds how many times Execute retries a command against
	// a fresh load after a ConcurrencyConflict, per spec.
	MaxRetries int

	// SnapshotThreshold: an aggregate with at least this many events
	// since its last snapshot is re-snapshotted after a successful
	// append. Zero disables snapshotting. Performance
	// optimization only, never a correctness requirement.
	SnapshotThreshold int64
}

// DefaultConfig returns the spec-mandated defaults: 3 retries, snapshot
// every 100 events.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, SnapshotThreshold: 100}
}

// NewRuntime constructs a Runtime for one aggregate Definition.
func NewRuntime[S any, C any](store eventstore.Store, registry *codec.Registry, def Definition[S, C], cfg Config) *Runtime[S, C] {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	return &Runtime[S, C]{
		store:             store,
		codec:             registry,
		def:               def,
		maxRetries:        cfg.MaxRetries,
		snapshotThreshold: cfg.SnapshotThreshold,
	}
}

// Load replays aggregateID's events (from the latest snapshot, if any)
// into its current state and version, scoped to the tenant carried on
// ctx.
func (r *Runtime[S, C]) Load(ctx context.Context, aggregateID string) (S, int64, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		var zero S
		return zero, 0, err
	}
	state, version, _, err := r.loadWithBaseline(ctx, aggregateID, scope.TenantID)
	return state, version, err
}

// loadWithBaseline is Load plus the snapshot's own baseline version (0 if
// there is no snapshot), which Execute needs to decide whether enough
// events have accumulated since the last snapshot to take a new one.
func (r *Runtime[S, C]) loadWithBaseline(ctx context.Context, aggregateID, tenantID string) (S, int64, int64, error) {
	snap, events, err := r.store.LoadFromSnapshot(ctx, aggregateID, tenantID)
	if err != nil {
		var zero S
		return zero, 0, 0, err
	}

	state := r.def.Empty()
	version := int64(0)
	baseline := int64(0)
	if snap != nil {
		decoded, derr := r.codec.Decode(r.snapshotEventType(), snap.Payload)
		if derr != nil {
			var zero S
			return zero, 0, 0, derr
		}
		if typed, ok := decoded.(*S); ok {
			state = *typed
		}
		version = snap.Version
		baseline = snap.Version
	}

	for _, evt := range events {
		payload, derr := r.codec.Decode(evt.EventType, evt.Payload)
		if derr != nil {
			var zero S
			return zero, 0, 0, derr
		}
		state = r.def.Apply(state, evt.EventType, payload, evt.Metadata)
		version = evt.Version
	}

	return state, version, baseline, nil
}

// snapshotEventType is the codec key this aggregate's full state is
// registered under; callers register S against it once at startup via
// codec.Register[S](registry, aggregate.SnapshotEventType(eventstore.AggregateVmRequest)).
func (r *Runtime[S, C]) snapshotEventType() string {
	return SnapshotEventType(r.def.AggregateType())
}

// SnapshotEventType returns the codec registration key for an aggregate
// type's full-state snapshot payload.
func SnapshotEventType(t eventstore.AggregateType) string {
	return "__snapshot_" + string(t) + "__"
}

// Execute performs load -> decide -> append, retrying on
// ConcurrencyConflict up to Config.MaxRetries times with a fresh load
// before surfacing the failure.
func (r *Runtime[S, C]) Execute(ctx context.Context, aggregateID string, cmd C) (int64, error) {
	scope, err := tenant.FromContext(ctx)
	if err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		state, version, baseline, err := r.loadWithBaseline(ctx, aggregateID, scope.TenantID)
		if err != nil {
			return 0, err
		}

		decided, err := r.def.Decide(state, version, cmd)
		if err != nil {
			return 0, err
		}
		if len(decided) == 0 {
			return version, nil
		}

		events := make([]eventstore.Event, 0, len(decided))
		now := time.Now().UTC()
		for _, d := range decided {
			payload, eerr := codec.Encode(d.Payload)
			if eerr != nil {
				return 0, eerr
			}
			events = append(events, eventstore.Event{
				EventType: d.EventType,
				Payload:   payload,
				Metadata: eventstore.Metadata{
					TenantID:      scope.TenantID,
					UserID:        scope.UserID,
					CorrelationID: correlationID(ctx),
					OccurredAt:    now,
				},
			})
		}

		newVersion, err := r.store.Append(ctx, aggregateID, r.def.AggregateType(), scope.TenantID, events, version)
		if err == nil {
			r.maybeSnapshot(ctx, aggregateID, scope.TenantID, state, events, baseline, newVersion)
			return newVersion, nil
		}
		if apperrors.Is(err, apperrors.KindConcurrencyConflict) {
			lastErr = err
			continue
		}
		return 0, err
	}
	return 0, lastErr
}

// maybeSnapshot re-snapshots an aggregate once at least snapshotThreshold
// events have accumulated since its last snapshot. state here is the state
// prior to applying the just-appended events, so it replays them forward
// before persisting; a failure is swallowed without being logged (this
// package has no logger dependency) — a missed snapshot is a performance
// regression, never a correctness one.
func (r *Runtime[S, C]) maybeSnapshot(ctx context.Context, aggregateID, tenantID string, state S, appended []eventstore.Event, baseline, newVersion int64) {
	if r.snapshotThreshold <= 0 || newVersion-baseline < r.snapshotThreshold {
		return
	}

	for _, evt := range appended {
		decoded, err := r.codec.Decode(evt.EventType, evt.Payload)
		if err != nil {
			return
		}
		state = r.def.Apply(state, evt.EventType, decoded, evt.Metadata)
	}

	payload, err := codec.Encode(&state)
	if err != nil {
		return
	}
	_ = r.store.SaveSnapshot(ctx, aggregateID, newVersion, payload, tenantID)
}

type correlationIDKey struct{}

// WithCorrelationID attaches a correlation id to ctx for Execute to stamp
// onto every event it appends.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}

func correlationID(ctx context.Context) string {
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return v
	}
	return ""
}
