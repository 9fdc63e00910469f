package eventstore

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "vcenterprovision.io/controlplane/internal/pkg/errors"

	sqlcgen "vcenterprovision.io/controlplane/internal/eventstore/sqlc/gen"
)

// uniqueViolationCode is the Postgres error code for a unique constraint
// violation — caught on the (aggregate_id, version) constraint to
// translate a racing append into ConcurrencyConflict.
const uniqueViolationCode = "23505"

// PgStore is the pgx-backed Store implementation. It shares its
// *pgxpool.Pool with the ent client and River, per the composition root's
// single-pool wiring.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore over an existing pool.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

var _ Store = (*PgStore)(nil)

// setTenantGUC sets the Postgres session variable the RLS policies key
// off of, scoped to the current transaction (local = true).
func setTenantGUC(ctx context.Context, tx pgx.Tx, tenantID string) error {
	_, err := tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID)
	return err
}

// Append implements Store.
func (s *PgStore) Append(ctx context.Context, aggregateID string, aggregateType AggregateType, tenantID string, events []Event, expectedVersion int64) (int64, error) {
	if len(events) == 0 {
		return expectedVersion, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, apperrors.ErrPersistence(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setTenantGUC(ctx, tx, tenantID); err != nil {
		return 0, apperrors.ErrPersistence(err)
	}

	q := sqlcgen.New(tx)

	actual, err := q.GetCurrentVersion(ctx, aggregateID)
	if err != nil {
		return 0, apperrors.ErrPersistence(err)
	}
	if actual != expectedVersion {
		return 0, apperrors.ErrConcurrencyConflict(expectedVersion, actual)
	}

	version := expectedVersion
	for _, evt := range events {
		version++
		_, err := q.InsertEvent(ctx, sqlcgen.InsertEventParams{
			EventID:       uuid.New(),
			AggregateID:   aggregateID,
			AggregateType: string(aggregateType),
			Version:       version,
			EventType:     evt.EventType,
			Payload:       evt.Payload,
			TenantID:      tenantID,
			UserID:        evt.Metadata.UserID,
			CorrelationID: evt.Metadata.CorrelationID,
			OccurredAt:    pgtype.Timestamptz{Time: evt.Metadata.OccurredAt, Valid: true},
		})
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
				// Lost the race between our version read and the insert;
				// surface the actual current version to the caller.
				cur, cerr := q.GetCurrentVersion(ctx, aggregateID)
				if cerr != nil {
					return 0, apperrors.ErrPersistence(cerr)
				}
				return 0, apperrors.ErrConcurrencyConflict(expectedVersion, cur)
			}
			return 0, apperrors.ErrPersistence(err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperrors.ErrPersistence(err)
	}
	return version, nil
}

// Load implements Store. Like Append, it runs inside its own transaction
// with the RLS GUC set first: the tenant_id predicate below is defense in
// depth, not the only thing standing between one tenant and another's
// events — the database's own row-level security policy enforces the
// same scoping independently.
func (s *PgStore) Load(ctx context.Context, aggregateID, tenantID string) ([]StoredEvent, error) {
	var rows []sqlcgen.Event
	err := s.withTenantTx(ctx, tenantID, func(q *sqlcgen.Queries) error {
		var qerr error
		rows, qerr = q.ListEventsByAggregate(ctx, sqlcgen.ListEventsByAggregateParams{
			AggregateID: aggregateID,
			TenantID:    tenantID,
		})
		return qerr
	})
	if err != nil {
		return nil, apperrors.ErrPersistence(err)
	}
	return toStoredEvents(rows), nil
}

// LoadFromSnapshot implements Store.
func (s *PgStore) LoadFromSnapshot(ctx context.Context, aggregateID, tenantID string) (*Snapshot, []StoredEvent, error) {
	var snap *Snapshot
	var rows []sqlcgen.Event

	err := s.withTenantTx(ctx, tenantID, func(q *sqlcgen.Queries) error {
		row, err := q.GetLatestSnapshot(ctx, sqlcgen.GetLatestSnapshotParams{
			AggregateID: aggregateID,
			TenantID:    tenantID,
		})
		switch {
		case err == nil:
			snap = &Snapshot{
				AggregateID: row.AggregateID,
				Version:     row.Version,
				Payload:     row.Payload,
				CreatedAt:   row.CreatedAt.Time,
			}
		case errors.Is(err, pgx.ErrNoRows):
			snap = nil
		default:
			return err
		}

		afterVersion := int64(0)
		if snap != nil {
			afterVersion = snap.Version
		}

		rows, err = q.ListEventsByAggregateAfterVersion(ctx, sqlcgen.ListEventsByAggregateAfterVersionParams{
			AggregateID: aggregateID,
			TenantID:    tenantID,
			Version:     afterVersion,
		})
		return err
	})
	if err != nil {
		return nil, nil, apperrors.ErrPersistence(err)
	}
	return snap, toStoredEvents(rows), nil
}

// SaveSnapshot implements Store.
func (s *PgStore) SaveSnapshot(ctx context.Context, aggregateID string, version int64, payload []byte, tenantID string) error {
	err := s.withTenantTx(ctx, tenantID, func(q *sqlcgen.Queries) error {
		return q.UpsertSnapshot(ctx, sqlcgen.UpsertSnapshotParams{
			AggregateID: aggregateID,
			Version:     version,
			Payload:     payload,
			TenantID:    tenantID,
		})
	})
	if err != nil {
		return apperrors.ErrPersistence(err)
	}
	return nil
}

// withTenantTx runs fn inside a transaction with the RLS GUC set to
// tenantID, committing on success. Every read or write that touches
// events/snapshots on behalf of a single tenant goes through this, the
// same way Append already does, so the session variable the RLS policies
// key off of (events_tenant_isolation/snapshots_tenant_isolation in
// schema.sql) is always established before the query runs.
func (s *PgStore) withTenantTx(ctx context.Context, tenantID string, fn func(q *sqlcgen.Queries) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := setTenantGUC(ctx, tx, tenantID); err != nil {
		return err
	}
	if err := fn(sqlcgen.New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ReadFrom implements Store. Unlike the other operations this is
// deliberately NOT tenant-scoped: it is the cross-tenant projection
// subscription primitive, gated only by the projection engine's own
// per-row tenant checks downstream.
func (s *PgStore) ReadFrom(ctx context.Context, afterGlobalSequence int64, batchSize int) ([]StoredEvent, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, apperrors.ErrPersistence(err)
	}
	defer conn.Release()

	q := sqlcgen.New(conn)
	rows, err := q.ListEventsFromSequence(ctx, sqlcgen.ListEventsFromSequenceParams{
		GlobalSequence: afterGlobalSequence,
		Limit:          int32(batchSize),
	})
	if err != nil {
		return nil, apperrors.ErrPersistence(err)
	}
	return toStoredEvents(rows), nil
}

func toStoredEvents(rows []sqlcgen.Event) []StoredEvent {
	out := make([]StoredEvent, 0, len(rows))
	for _, r := range rows {
		out = append(out, StoredEvent{
			EventID:       r.EventID.String(),
			AggregateID:   r.AggregateID,
			AggregateType: AggregateType(r.AggregateType),
			Version:       r.Version,
			EventType:     r.EventType,
			Payload:       r.Payload,
			GlobalSequence: r.GlobalSequence,
			Metadata: Metadata{
				TenantID:      r.TenantID,
				UserID:        r.UserID,
				CorrelationID: r.CorrelationID,
				OccurredAt:    r.OccurredAt.Time,
			},
		})
	}
	return out
}
