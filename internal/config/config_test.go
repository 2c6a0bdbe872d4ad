package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 64, cfg.Presence.SendBuffer)
	assert.Equal(t, 30*time.Second, cfg.Presence.OfflineGrace)
}

func TestLoad_YAMLWithEnvExpansion(t *testing.T) {
	t.Setenv("TEST_PG_URL", "postgres://u:p@localhost/agentlink")
	path := writeConfig(t, `
server:
  http_addr: ":9090"
storage:
  driver: postgres
  database_url: ${TEST_PG_URL}
presence:
  offline_grace: 2m
  send_buffer: 8
federation:
  jwt_secret: s3cret
logging:
  level: debug
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Server.HTTPAddr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://u:p@localhost/agentlink", cfg.Storage.DatabaseURL)
	assert.Equal(t, 2*time.Minute, cfg.Presence.OfflineGrace)
	assert.Equal(t, 10*time.Second, cfg.Presence.StartupGrace, "unset keys keep defaults")
	assert.Equal(t, 8, cfg.Presence.SendBuffer)
	assert.Equal(t, "s3cret", cfg.Federation.JWTSecret)

	level, err := cfg.Logging.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("PORT", "7000")
	t.Setenv("OFFLINE_GRACE_SECONDS", "5")
	t.Setenv("FEDERATION_JWT_SECRET", "from-env")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver, "DATABASE_URL implies postgres")
	assert.Equal(t, "postgres://env/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, ":7000", cfg.Server.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Presence.OfflineGrace)
	assert.Equal(t, "from-env", cfg.Federation.JWTSecret)
}

func TestLoad_ExplicitDriverBeatsDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("STORAGE_DRIVER", "SQLite")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.Storage.Driver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mysql" }, `storage.driver "mysql"`},
		{"postgres without url", func(c *Config) { c.Storage.Driver = DriverPostgres }, "database_url is required"},
		{"sqlite without path", func(c *Config) { c.Storage.SQLitePath = "" }, "sqlite_path is required"},
		{"zero rate", func(c *Config) { c.HTTP.RateLimitRPS = 0 }, "must be positive"},
		{"zero buffer", func(c *Config) { c.Presence.SendBuffer = 0 }, "send_buffer"},
		{"negative grace", func(c *Config) { c.Presence.OfflineGrace = -time.Second }, "grace"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
