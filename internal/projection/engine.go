// Package projection implements the projection engine (C8): it tails the
// event store's global, cross-tenant sequence and fans each event out to a
// set of independent subscribers, each advancing its own durable cursor.
// A slow or stuck subscriber never blocks another — every subscriber has
// its own goroutine, its own cursor row, and its own retry budget.
package projection

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	"vcenterprovision.io/controlplane/ent/poisonevent"
	"vcenterprovision.io/controlplane/ent/projectioncursor"
	"vcenterprovision.io/controlplane/internal/codec"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
	"vcenterprovision.io/controlplane/internal/pkg/metrics"
)

// Subscriber applies one projection's worth of work for the event types it
// declares interest in. Apply runs inside the same Ent transaction the
// engine uses to advance the subscriber's cursor, so a projection write and
// its cursor advance commit or roll back together.
type Subscriber interface {
	// Name identifies the subscriber's cursor row. Stable across restarts
	// and deploys; renaming a subscriber resets it to the beginning of
	// the log.
	Name() string

	// Interested reports whether this subscriber has a handler for the
	// given event type. Events it has no interest in still advance its
	// cursor, just without a call to Apply.
	Interested(eventType string) bool

	// Apply projects a single decoded event within tx. Returning an error
	// triggers the engine's retry-then-poison path; Apply must be safe to
	// call more than once for the same event (idempotent via upsert or
	// unique-constrained insert).
	Apply(ctx context.Context, tx *ent.Tx, event eventstore.StoredEvent, decoded any) error
}

// Config tunes the engine's polling and retry behavior.
type Config struct {
	BatchSize    int
	PollInterval time.Duration
	MaxAttempts  uint
}

// DefaultConfig returns the engine's production defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:    256,
		PollInterval: 500 * time.Millisecond,
		MaxAttempts:  5,
	}
}

// Engine runs one polling loop per registered Subscriber against a shared
// event store and Ent client.
type Engine struct {
	store   eventstore.Store
	codec   *codec.Registry
	ent     *ent.Client
	subs    []Subscriber
	cfg     Config
}

// New constructs an Engine. Subscribers are registered up front; the
// engine does not support adding subscribers after Run starts.
func New(store eventstore.Store, registry *codec.Registry, entClient *ent.Client, cfg Config, subs ...Subscriber) *Engine {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &Engine{store: store, codec: registry, ent: entClient, subs: subs, cfg: cfg}
}

// Run starts one goroutine per subscriber and blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	done := make(chan struct{}, len(e.subs))
	for _, sub := range e.subs {
		sub := sub
		go func() {
			defer func() { done <- struct{}{} }()
			e.runSubscriber(ctx, sub)
		}()
	}
	for range e.subs {
		<-done
	}
}

func (e *Engine) runSubscriber(ctx context.Context, sub Subscriber) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		cursor, err := e.loadCursor(ctx, sub.Name())
		if err != nil {
			logger.Error("projection: failed to load cursor", zap.String("subscriber", sub.Name()), zap.Error(err))
			if !sleepOrDone(ctx, e.cfg.PollInterval) {
				return
			}
			continue
		}

		events, err := e.store.ReadFrom(ctx, cursor, e.cfg.BatchSize)
		if err != nil {
			logger.Error("projection: failed to read events", zap.String("subscriber", sub.Name()), zap.Error(err))
			if !sleepOrDone(ctx, e.cfg.PollInterval) {
				return
			}
			continue
		}

		// Lower bound on backlog: a full batch means more is likely
		// waiting behind it. Cheap to compute, no extra store query.
		metrics.ProjectionLag.WithLabelValues(sub.Name()).Set(float64(len(events)))

		if len(events) == 0 {
			if !sleepOrDone(ctx, e.cfg.PollInterval) {
				return
			}
			continue
		}

		for _, evt := range events {
			if !sub.Interested(evt.EventType) {
				e.advanceCursor(ctx, sub.Name(), evt.GlobalSequence)
				continue
			}
			e.processOne(ctx, sub, evt)
		}
	}
}

func (e *Engine) processOne(ctx context.Context, sub Subscriber, evt eventstore.StoredEvent) {
	decoded, err := e.codec.Decode(evt.EventType, evt.Payload)
	if err != nil {
		e.poison(ctx, sub.Name(), evt, err, 0)
		metrics.ProjectionPoisonTotal.WithLabelValues(sub.Name()).Inc()
		e.advanceCursor(ctx, sub.Name(), evt.GlobalSequence)
		return
	}

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		return struct{}{}, e.applyAtomic(ctx, sub, evt, decoded)
	}

	_, err = backoff.Retry(ctx, operation,
		backoff.WithMaxTries(e.cfg.MaxAttempts),
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
	)
	if err != nil {
		e.poison(ctx, sub.Name(), evt, err, attempts)
		metrics.ProjectionPoisonTotal.WithLabelValues(sub.Name()).Inc()
	}
	// Cursor advances whether Apply succeeded or was poisoned: a
	// subscriber never gets stuck retrying the same event forever once
	// its attempt budget is spent.
	e.advanceCursor(ctx, sub.Name(), evt.GlobalSequence)
}

func (e *Engine) applyAtomic(ctx context.Context, sub Subscriber, evt eventstore.StoredEvent, decoded any) error {
	tx, err := e.ent.Tx(ctx)
	if err != nil {
		return err
	}
	if err := sub.Apply(ctx, tx, evt, decoded); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.ProjectionCursor.Create().
		SetSubscriberName(sub.Name()).
		SetLastGlobalSequence(evt.GlobalSequence).
		OnConflictColumns(projectioncursor.FieldSubscriberName).
		UpdateLastGlobalSequence().
		Exec(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}

func (e *Engine) loadCursor(ctx context.Context, name string) (int64, error) {
	row, err := e.ent.ProjectionCursor.Query().
		Where(projectioncursor.SubscriberNameEQ(name)).
		Only(ctx)
	if err != nil {
		if ent.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}
	return row.LastGlobalSequence, nil
}

func (e *Engine) advanceCursor(ctx context.Context, name string, seq int64) {
	err := e.ent.ProjectionCursor.Create().
		SetSubscriberName(name).
		SetLastGlobalSequence(seq).
		OnConflictColumns(projectioncursor.FieldSubscriberName).
		UpdateLastGlobalSequence().
		Exec(ctx)
	if err != nil {
		logger.Error("projection: failed to advance cursor",
			zap.String("subscriber", name),
			zap.Int64("global_sequence", seq),
			zap.Error(err),
		)
	}
}

func (e *Engine) poison(ctx context.Context, subscriberName string, evt eventstore.StoredEvent, cause error, attempts int) {
	err := e.ent.PoisonEvent.Create().
		SetID(uuid.NewString()).
		SetSubscriberName(subscriberName).
		SetGlobalSequence(evt.GlobalSequence).
		SetAggregateID(evt.AggregateID).
		SetEventType(evt.EventType).
		SetError(cause.Error()).
		SetAttempts(attempts).
		OnConflictColumns(poisonevent.FieldSubscriberName, poisonevent.FieldGlobalSequence).
		UpdateAttempts().
		UpdateError().
		Exec(ctx)
	if err != nil {
		logger.Error("projection: failed to record poison event", zap.String("subscriber", subscriberName), zap.Error(err))
	}

	logger.Error("projection: event poisoned after exhausting retries",
		zap.String("subscriber", subscriberName),
		zap.Int64("global_sequence", evt.GlobalSequence),
		zap.String("aggregate_id", evt.AggregateID),
		zap.String("event_type", evt.EventType),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
