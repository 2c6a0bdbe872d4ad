// Package config loads server settings. Precedence: defaults, then the YAML
// file (with ${VAR} expansion), then environment overrides.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Presence   PresenceConfig   `yaml:"presence"`
	HTTP       HTTPConfig       `yaml:"http"`
	Federation FederationConfig `yaml:"federation"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type StorageConfig struct {
	Driver      string `yaml:"driver"`
	DatabaseURL string `yaml:"database_url"`
	SQLitePath  string `yaml:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns"`
	// Channel prefix for LISTEN/NOTIFY.
	NotifyPrefix   string        `yaml:"notify_prefix"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type PresenceConfig struct {
	// OfflineGrace delays the persisted offline status so a quick reconnect is invisible.
	OfflineGrace time.Duration `yaml:"offline_grace"`
	// StartupGrace applies to profiles still marked online when the process starts.
	StartupGrace time.Duration `yaml:"startup_grace"`
	SendBuffer   int           `yaml:"send_buffer"`
	LookupTTL    time.Duration `yaml:"lookup_ttl"`
}

type HTTPConfig struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
	CORSOrigin     string  `yaml:"cors_origin"`
}

type FederationConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

func Default() Config {
	return Config{
		Server: ServerConfig{HTTPAddr: ":8080", ShutdownTimeout: 10 * time.Second},
		Storage: StorageConfig{
			Driver:         DriverSQLite,
			SQLitePath:     "agentlink.db",
			NotifyPrefix:   "agentlink",
			IdempotencyTTL: 24 * time.Hour,
		},
		Presence: PresenceConfig{
			OfflineGrace: 30 * time.Second,
			StartupGrace: 10 * time.Second,
			SendBuffer:   64,
			LookupTTL:    time.Minute,
		},
		HTTP:       HTTPConfig{RateLimitRPS: 20, RateLimitBurst: 40, CORSOrigin: "*"},
		Federation: FederationConfig{Issuer: "agentlink", TokenTTL: 24 * time.Hour},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
		Metrics:    MetricsConfig{Enabled: true, Path: "/metrics", Namespace: "agentlink"},
	}
}

// Load reads path when it is non-empty, then applies env overrides and validates.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Storage.DatabaseURL = v
		if os.Getenv("STORAGE_DRIVER") == "" {
			cfg.Storage.Driver = DriverPostgres
		}
	}
	if v := os.Getenv("STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.HTTPAddr = ":" + v
	}
	if v := os.Getenv("FEDERATION_JWT_SECRET"); v != "" {
		cfg.Federation.JWTSecret = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	cfg.Presence.OfflineGrace = envDuration("OFFLINE_GRACE_SECONDS", cfg.Presence.OfflineGrace)
	cfg.Presence.StartupGrace = envDuration("STARTUP_GRACE_SECONDS", cfg.Presence.StartupGrace)
}

// envDuration reads an integer-seconds env var and returns a Duration.
// Falls back to defaultVal if the var is unset or invalid.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}

func (c Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.SQLitePath == "" {
			errs = append(errs, errors.New("storage.sqlite_path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, errors.New("storage.database_url is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q: want sqlite or postgres", c.Storage.Driver))
	}
	if c.Server.HTTPAddr == "" {
		errs = append(errs, errors.New("server.http_addr is required"))
	}
	if c.HTTP.RateLimitRPS <= 0 || c.HTTP.RateLimitBurst <= 0 {
		errs = append(errs, errors.New("http.rate_limit_rps and http.rate_limit_burst must be positive"))
	}
	if c.Presence.SendBuffer <= 0 {
		errs = append(errs, errors.New("presence.send_buffer must be positive"))
	}
	if c.Presence.OfflineGrace < 0 || c.Presence.StartupGrace < 0 {
		errs = append(errs, errors.New("presence grace periods must not be negative"))
	}
	if _, err := c.Logging.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (l LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("logging.level %q: %w", l.Level, err)
	}
	return level, nil
}
