package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vcenterprovision.io/controlplane/internal/config"
	"vcenterprovision.io/controlplane/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func TestBootstrap_NoDB(t *testing.T) {
	// Bootstrap without a reachable database should fail at connection time.
	cfg := &config.Config{
		Database: config.DatabaseConfig{
			Host:     "localhost",
			Port:     65432, // non-existent port
			User:     "test",
			Password: "test",
			Database: "test",
			SSLMode:  "disable",
			MaxConns: 5,
			MinConns: 1,
		},
		Worker: config.WorkerConfig{
			GeneralPoolSize:      10,
			ProvisioningPoolSize: 5,
		},
	}

	ctx := context.Background()
	application, err := Bootstrap(ctx, cfg)
	require.Error(t, err, "Bootstrap should fail without database")
	assert.Nil(t, application, "Application should be nil on bootstrap failure")
}

func TestApplication_Shutdown_Nil(t *testing.T) {
	// Shutdown on a zero-value Application should not panic.
	application := &Application{}

	assert.NotPanics(t, func() {
		application.Shutdown()
	}, "Shutdown on empty Application should not panic")
}

func TestApplication_Start_NilComponents(t *testing.T) {
	// Start on a zero-value Application should be a no-op, not a panic.
	application := &Application{}

	assert.NotPanics(t, func() {
		err := application.Start(context.Background())
		assert.NoError(t, err)
	}, "Start on empty Application should not panic")
}
