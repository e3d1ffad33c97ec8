package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury/src/config"
)

func TestLoadConfig(t *testing.T) {
	t.Run("base settings", func(t *testing.T) {
		cfg, err := config.LoadConfig("../../settings", "")
		require.NoError(t, err)

		assert.Equal(t, config.API, cfg.Service.Type)
		assert.Equal(t, 5*time.Minute, cfg.Sync.PriceWindow)
		assert.Equal(t, 12*time.Hour, cfg.Sync.EntityWindow)
		assert.Equal(t, 604800*time.Second, cfg.Cache.AdminEntitiesTTL)
		assert.Equal(t, "localhost", cfg.Databases.Redis.Host)
	})

	t.Run("environment overlay", func(t *testing.T) {
		cfg, err := config.LoadConfig("../../settings", "TESTING")
		require.NoError(t, err)

		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Empty(t, cfg.Databases.Redis.Host)
		assert.Equal(t, "treasury_test", cfg.Databases.SQL.Database)
		assert.Equal(t, 2*time.Second, cfg.ExternalClients.Treasuries.Timeout)
		assert.Equal(t, "localhost", cfg.Databases.SQL.Host)
	})

	t.Run("missing overlay is ignored", func(t *testing.T) {
		cfg, err := config.LoadConfig("../../settings", "NOPE")
		require.NoError(t, err)
		assert.Equal(t, "info", cfg.Log.Level)
	})

	t.Run("environment variables win", func(t *testing.T) {
		t.Setenv("SYNC_PRICEWINDOW", "1m")
		cfg, err := config.LoadConfig("../../settings", "")
		require.NoError(t, err)
		assert.Equal(t, time.Minute, cfg.Sync.PriceWindow)
	})

	t.Run("defaults fill missing keys", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "appsettings.yaml"), []byte("service:\n  port: \"9000\"\n"), 0o600))

		cfg, err := config.LoadConfig(dir, "")
		require.NoError(t, err)
		assert.Equal(t, "9000", cfg.Service.Port)
		assert.Equal(t, 60*time.Second, cfg.Sync.BusyTTL)
		assert.Equal(t, "*/5 * * * *", cfg.Worker.WarmupCron)
	})

	t.Run("missing base file", func(t *testing.T) {
		_, err := config.LoadConfig(t.TempDir(), "")
		assert.Error(t, err)
	})
}

func TestSQLConfigDSN(t *testing.T) {
	cfg := config.SQLConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "treasury"}
	assert.Equal(t, "host=db user=u password=p dbname=treasury port=5432 sslmode=disable", cfg.DSN())

	cfg.ConnectionString = "postgres://x"
	assert.Equal(t, "postgres://x", cfg.DSN())
}
