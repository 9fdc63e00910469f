// Package codec implements the event type registry (C3): a mapping from
// event_type string to encoder/decoder for its payload. Registration is
// explicit at startup; decoding an unknown event_type fails fast. This is
// the only package that knows the wire format of event payloads — the
// event store treats payloads as opaque bytes.
package codec

import (
	"encoding/json"
	"fmt"
	"sync"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"
)

// Registry maps event_type strings to their payload Go type. Encoding uses
// encoding/json, which is deterministic for a given struct value (stable
// field order from struct definition) — satisfying the "same event, same
// bytes" replay-equality requirement used by tests. Decoding tolerates
// unknown JSON fields by default, satisfying forward compatibility.
type Registry struct {
	mu    sync.RWMutex
	types map[string]func() any
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]func() any)}
}

// Register associates eventType with a zero-value factory for its payload
// type. Call Register[FooPayload](registry, eventType) once per event type
// at startup.
func Register[T any](r *Registry, eventType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[eventType] = func() any { var v T; return &v }
}

// Encode marshals a payload value to its wire bytes.
func Encode(payload any) ([]byte, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.ErrPersistence(fmt.Errorf("encode payload: %w", err))
	}
	return b, nil
}

// Decode unmarshals payload bytes into the registered Go type for
// eventType. Fails fast (PersistenceFailure with code EVENT_CODEC_UNKNOWN)
// if eventType was never registered.
func (r *Registry) Decode(eventType string, payload []byte) (any, error) {
	r.mu.RLock()
	factory, ok := r.types[eventType]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.KindPersistenceFailure, apperrors.CodeEventCodecUnknown,
			fmt.Sprintf("unknown event type %q", eventType))
	}

	target := factory()
	if err := json.Unmarshal(payload, target); err != nil {
		return nil, apperrors.ErrPersistence(fmt.Errorf("decode event %q: %w", eventType, err))
	}
	return target, nil
}

// Registered reports whether eventType has a registered decoder, useful
// for the projection engine to skip events it does not subscribe to
// without attempting a decode.
func (r *Registry) Registered(eventType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[eventType]
	return ok
}
