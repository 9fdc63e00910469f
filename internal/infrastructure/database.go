// Package infrastructure provides database and connection pool setup.
//
// A single pgxpool.Pool backs Ent, River, and the raw pgx-based event
// store, so a future caller that genuinely needs cross-component
// transactions (which this repository deliberately does not attempt, see
// DESIGN.md's C9 entry on Ent/River transaction incompatibility) at least
// shares one pool instead of exhausting the database with three.
package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"vcenterprovision.io/controlplane/ent"
	entmigrate "vcenterprovision.io/controlplane/ent/migrate"
	"vcenterprovision.io/controlplane/internal/config"
	"vcenterprovision.io/controlplane/internal/eventstore"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
)

// DatabaseClients contains every database-backed client the service
// needs, all sharing one connection pool.
type DatabaseClients struct {
	// Pool is the shared pgx connection pool (Ent + River + event store).
	Pool *pgxpool.Pool

	// DB is the *sql.DB wrapper around Pool, used only by Ent.
	DB *sql.DB

	// EntClient is the Ent ORM client, backing C8's read models and C10's
	// read repositories.
	EntClient *ent.Client

	// EventStore is the append-only event store (C2), backed directly by
	// Pool via pgx rather than through Ent.
	EventStore *eventstore.PgStore

	// RiverClient is the orchestrator's (C9) job queue client. Nil until
	// InitRiverClient registers the worker set.
	RiverClient *river.Client[pgx.Tx]
}

// NewDatabaseClients creates every database client off one shared pool.
func NewDatabaseClients(ctx context.Context, cfg config.DatabaseConfig) (*DatabaseClients, error) {
	dsn := cfg.DSN()

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	poolConfig.MaxConns = cfg.MaxConns
	poolConfig.MinConns = cfg.MinConns
	poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	poolConfig.HealthCheckPeriod = time.Minute

	poolConfig.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, "SET timezone = 'UTC'")
		return err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := stdlib.OpenDBFromPool(pool)
	entDriver := entsql.OpenDB(dialect.Postgres, db)
	entClient := ent.NewClient(ent.Driver(entDriver))

	logger.Info("database connection pool created",
		zap.Int32("max_conns", cfg.MaxConns),
		zap.Int32("min_conns", cfg.MinConns),
	)

	return &DatabaseClients{
		Pool:       pool,
		DB:         db,
		EntClient:  entClient,
		EventStore: eventstore.NewPgStore(pool),
	}, nil
}

// AutoMigrate runs Ent schema migration and River's queue table migration.
// It does not create the event store's own tables (events, snapshots from
// internal/eventstore/sqlc/schema.sql). Development convenience only; production
// deployments use Atlas-managed migrations the same way the teacher does.
func (c *DatabaseClients) AutoMigrate(ctx context.Context) error {
	logger.Info("running ent auto-migration")
	if err := c.EntClient.Schema.Create(ctx,
		entmigrate.WithDropIndex(true),
		entmigrate.WithDropColumn(true),
		entmigrate.WithForeignKeys(true),
	); err != nil {
		return fmt.Errorf("ent auto-migrate: %w", err)
	}
	logger.Info("ent auto-migration completed")

	logger.Info("running river migration")
	migrator, err := rivermigrate.New(riverpgxv5.New(c.Pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("river migrate up: %w", err)
	}
	if len(res.Versions) > 0 {
		logger.Info("river migration completed", zap.Int("versions_applied", len(res.Versions)))
	} else {
		logger.Info("river migration: already up-to-date")
	}

	return nil
}

// InitRiverClient creates the River client with the orchestrator's worker
// registered on the "provisioning" queue.
func (c *DatabaseClients) InitRiverClient(workers *river.Workers, cfg config.RiverConfig) error {
	riverClient, err := river.NewClient(riverpgxv5.New(c.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: cfg.MaxWorkers},
			"provisioning":     {MaxWorkers: cfg.MaxWorkers},
		},
		Workers:                     workers,
		CompletedJobRetentionPeriod: cfg.CompletedJobRetentionPeriod,
	})
	if err != nil {
		return fmt.Errorf("create river client: %w", err)
	}
	c.RiverClient = riverClient
	logger.Info("river client initialized", zap.Int("max_workers", cfg.MaxWorkers))
	return nil
}

// Close closes every connection pool gracefully.
func (c *DatabaseClients) Close() {
	if c.EntClient != nil {
		c.EntClient.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
