// Package config provides configuration management for the VM request
// service.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, LOG_LEVEL)
// 3. Default values
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the root configuration structure.
type Config struct {
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Security     SecurityConfig     `mapstructure:"security"`
	Hypervisor   HypervisorConfig   `mapstructure:"hypervisor"`
	EventStore   EventStoreConfig   `mapstructure:"event_store"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// Ent, River, and the raw event store share one connection pool.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings for the provisioning queue.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// WorkerConfig contains ants worker pool settings (§5 concurrency model).
type WorkerConfig struct {
	GeneralPoolSize      int `mapstructure:"general_pool_size"`
	ProvisioningPoolSize int `mapstructure:"provisioning_pool_size"`
}

// SecurityConfig contains security-related settings.
type SecurityConfig struct {
	EncryptionKey string `mapstructure:"encryption_key"`
}

// HypervisorConfig contains vCenter connection defaults. Per-tenant
// overrides (endpoint, credentials, placement) live in
// ent.VMwareConfiguration; these are fallbacks and transport-level knobs
// that apply to every tenant's hypervisor.Port calls.
type HypervisorConfig struct {
	InsecureSkipVerify   bool          `mapstructure:"insecure_skip_verify"`
	SessionKeepAlive     time.Duration `mapstructure:"session_keep_alive"`
	CloneTimeout         time.Duration `mapstructure:"clone_timeout"`
	NetworkWaitTimeout   time.Duration `mapstructure:"network_wait_timeout"`
	CircuitBreakerTrips  uint32        `mapstructure:"circuit_breaker_trips"`
	CircuitBreakerResetS time.Duration `mapstructure:"circuit_breaker_reset"`
}

// EventStoreConfig tunes the event store (C2) and aggregate runtime (C4).
type EventStoreConfig struct {
	SnapshotThreshold int `mapstructure:"snapshot_threshold"`
	RetryBound        int `mapstructure:"retry_bound"`
}

// OrchestratorConfig tunes the provisioning orchestrator (C9).
type OrchestratorConfig struct {
	StallThreshold     time.Duration `mapstructure:"stall_threshold"`
	OuterTimeoutBudget time.Duration `mapstructure:"outer_timeout_budget"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/controlplane")

	// No prefix: DATABASE_URL, LOG_LEVEL, etc. Nested keys map
	// database.max_conns -> DATABASE_MAX_CONNS.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.EncryptionKey) < 32 {
		return fmt.Errorf("security.encryption_key must be at least 32 characters")
	}
	if c.EventStore.SnapshotThreshold < 0 {
		return fmt.Errorf("event_store.snapshot_threshold must not be negative")
	}
	return nil
}

// ensureSecrets auto-generates a missing encryption key on first boot, so
// local/dev runs work without manual setup; production deployments are
// expected to set SECURITY_ENCRYPTION_KEY explicitly.
func (c *Config) ensureSecrets() error {
	if c.Security.EncryptionKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate encryption key: %w", err)
		}
		c.Security.EncryptionKey = key
		logBootstrapWarn(
			"auto-generated encryption_key; set SECURITY_ENCRYPTION_KEY env var for persistence across restarts",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func setDefaults(v *viper.Viper) {
	// Database
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "controlplane")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "controlplane")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.provisioning_pool_size", 50)

	// Hypervisor
	v.SetDefault("hypervisor.insecure_skip_verify", false)
	v.SetDefault("hypervisor.session_keep_alive", "5m")
	v.SetDefault("hypervisor.clone_timeout", "60s")
	v.SetDefault("hypervisor.network_wait_timeout", "120s")
	v.SetDefault("hypervisor.circuit_breaker_trips", 5)
	v.SetDefault("hypervisor.circuit_breaker_reset", "30s")

	// Event store / aggregate runtime
	v.SetDefault("event_store.snapshot_threshold", 100)
	v.SetDefault("event_store.retry_bound", 3)

	// Orchestrator
	v.SetDefault("orchestrator.stall_threshold", "15m")
	v.SetDefault("orchestrator.outer_timeout_budget", "300s")
}
