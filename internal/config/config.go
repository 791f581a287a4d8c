// Package config defines the top-level configuration for marketd and
// provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML or YAML file and then optionally overridden by MARKETD_* environment
// variables.
type Config struct {
	Network  NetworkConfig  `toml:"network" yaml:"network"`
	Ledger   LedgerConfig   `toml:"ledger" yaml:"ledger"`
	Postgres PostgresConfig `toml:"postgres" yaml:"postgres"`
	Redis    RedisConfig    `toml:"redis" yaml:"redis"`
	S3       S3Config       `toml:"s3" yaml:"s3"`
	Engine   EngineConfig   `toml:"engine" yaml:"engine"`
	Auth     AuthConfig     `toml:"auth" yaml:"auth"`
	Server   ServerConfig   `toml:"server" yaml:"server"`
	Watcher  WatcherConfig  `toml:"watcher" yaml:"watcher"`
	Archive  ArchiveConfig  `toml:"archive" yaml:"archive"`
	Notify   NotifyConfig   `toml:"notify" yaml:"notify"`
	Mode     string         `toml:"mode" yaml:"mode"`
	LogLevel string         `toml:"log_level" yaml:"log_level"`
}

// NetworkConfig names the chain whose native unit stakes are denominated in.
type NetworkConfig struct {
	Name    string `toml:"name" yaml:"name"`
	ChainID int64  `toml:"chain_id" yaml:"chain_id"`
	// Decimals is the number of base units per whole coin as a power of ten
	// (18 for wei per ether).
	Decimals int32 `toml:"decimals" yaml:"decimals"`
	// Symbol labels display amounts.
	Symbol string `toml:"symbol" yaml:"symbol"`
}

// LedgerConfig selects the ledger backend.
type LedgerConfig struct {
	Driver     string `toml:"driver" yaml:"driver"` // memory, postgres, sqlite
	SQLitePath string `toml:"sqlite_path" yaml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN             string   `toml:"dsn" yaml:"dsn"`
	Host            string   `toml:"host" yaml:"host"`
	Port            int      `toml:"port" yaml:"port"`
	Database        string   `toml:"database" yaml:"database"`
	User            string   `toml:"user" yaml:"user"`
	Password        string   `toml:"password" yaml:"password"`
	SSLMode         string   `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns    int      `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns    int      `toml:"pool_min_conns" yaml:"pool_min_conns"`
	ConnMaxLifetime duration `toml:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	RunMigrations   bool     `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. When disabled the process
// falls back to in-process locks and an in-process event bus.
type RedisConfig struct {
	Enabled    bool     `toml:"enabled" yaml:"enabled"`
	Addr       string   `toml:"addr" yaml:"addr"`
	Password   string   `toml:"password" yaml:"password"`
	DB         int      `toml:"db" yaml:"db"`
	PoolSize   int      `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int      `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled" yaml:"tls_enabled"`
	KeyPrefix  string   `toml:"key_prefix" yaml:"key_prefix"`
	CacheTTL   duration `toml:"cache_ttl" yaml:"cache_ttl"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
}

// EngineConfig holds settlement engine parameters.
type EngineConfig struct {
	// Resolver is creator, admin or creator_or_admin.
	Resolver string   `toml:"resolver" yaml:"resolver"`
	Admins   []string `toml:"admins" yaml:"admins"`
	LockTTL  duration `toml:"lock_ttl" yaml:"lock_ttl"`
	LockWait duration `toml:"lock_wait" yaml:"lock_wait"`
}

// AuthConfig holds wallet login and session token parameters.
type AuthConfig struct {
	JWTSecret    string   `toml:"jwt_secret" yaml:"jwt_secret"`
	TokenTTL     duration `toml:"token_ttl" yaml:"token_ttl"`
	LoginMaxSkew duration `toml:"login_max_skew" yaml:"login_max_skew"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port" yaml:"port"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
	// RateLimit is requests per RateWindow per client; 0 disables limiting.
	RateLimit  int      `toml:"rate_limit" yaml:"rate_limit"`
	RateWindow duration `toml:"rate_window" yaml:"rate_window"`
}

// WatcherConfig controls the deadline watcher.
type WatcherConfig struct {
	Interval duration `toml:"interval" yaml:"interval"`
}

// ArchiveConfig controls settlement exports; it requires s3.enabled.
type ArchiveConfig struct {
	Enabled  bool     `toml:"enabled" yaml:"enabled"`
	Interval duration `toml:"interval" yaml:"interval"`
	MinAge   duration `toml:"min_age" yaml:"min_age"`
}

// NotifyConfig holds notification channel settings.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// duration is a wrapper around time.Duration that decodes strings like "5m"
// or "30s" from TOML and YAML.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for the TOML decoder.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML decodes a duration string for the YAML decoder.
func (d *duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("couldn't parse duration: %w", err)
	}
	d.Duration = parsed
	return nil
}

// Defaults returns a Config populated with safe development defaults.
func Defaults() Config {
	return Config{
		Network: NetworkConfig{
			Name:     "base",
			ChainID:  8453,
			Decimals: 18,
			Symbol:   "ETH",
		},
		Ledger: LedgerConfig{
			Driver:     "memory",
			SQLitePath: "marketd.db",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "marketd",
			User:            "marketd",
			SSLMode:         "disable",
			PoolMaxConns:    10,
			PoolMinConns:    1,
			ConnMaxLifetime: duration{time.Hour},
			RunMigrations:   true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   10,
			MaxRetries: 3,
			KeyPrefix:  "marketd",
			CacheTTL:   duration{30 * time.Second},
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "marketd",
			ForcePathStyle: true,
		},
		Engine: EngineConfig{
			Resolver: "creator",
			LockTTL:  duration{10 * time.Second},
			LockWait: duration{5 * time.Second},
		},
		Auth: AuthConfig{
			TokenTTL:     duration{24 * time.Hour},
			LoginMaxSkew: duration{5 * time.Minute},
		},
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"*"},
			RateLimit:   120,
			RateWindow:  duration{time.Minute},
		},
		Watcher: WatcherConfig{
			Interval: duration{15 * time.Second},
		},
		Archive: ArchiveConfig{
			Interval: duration{10 * time.Minute},
			MinAge:   duration{24 * time.Hour},
		},
		Notify: NotifyConfig{
			Events: []string{"market_created", "market_resolved"},
		},
		Mode:     "full",
		LogLevel: "info",
	}
}

var validModes = map[string]bool{
	"server":  true,
	"worker":  true,
	"full":    true,
	"migrate": true,
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validDrivers = map[string]bool{
	"memory":   true,
	"postgres": true,
	"sqlite":   true,
}

var validResolvers = map[string]bool{
	"creator":          true,
	"admin":            true,
	"creator_or_admin": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a single error listing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, worker, full, migrate)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	if c.Network.ChainID <= 0 {
		errs = append(errs, "network: chain_id must be positive")
	}
	if c.Network.Decimals < 0 || c.Network.Decimals > 36 {
		errs = append(errs, fmt.Sprintf("network: decimals must be 0-36, got %d", c.Network.Decimals))
	}

	driver := strings.ToLower(c.Ledger.Driver)
	if !validDrivers[driver] {
		errs = append(errs, fmt.Sprintf("ledger: unknown driver %q (valid: memory, postgres, sqlite)", c.Ledger.Driver))
	}
	if driver == "sqlite" && strings.TrimSpace(c.Ledger.SQLitePath) == "" {
		errs = append(errs, "ledger: sqlite_path must not be empty for the sqlite driver")
	}
	if driver == "memory" && c.Mode == "worker" {
		errs = append(errs, "ledger: the memory driver cannot be shared with a separate worker process")
	}
	if c.Mode == "migrate" && driver != "postgres" {
		errs = append(errs, "mode: migrate requires the postgres ledger driver")
	}

	if driver == "postgres" {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 || c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must be between 0 and pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}
	if c.Archive.Enabled {
		if !c.S3.Enabled {
			errs = append(errs, "archive: requires s3.enabled")
		}
		if c.Archive.Interval.Duration <= 0 {
			errs = append(errs, "archive: interval must be > 0")
		}
	}

	if !validResolvers[strings.ToLower(c.Engine.Resolver)] {
		errs = append(errs, fmt.Sprintf("engine: unknown resolver %q (valid: creator, admin, creator_or_admin)", c.Engine.Resolver))
	}
	if strings.ToLower(c.Engine.Resolver) == "admin" && len(c.Engine.Admins) == 0 {
		errs = append(errs, "engine: admins must not be empty for the admin resolver")
	}
	if c.Engine.LockTTL.Duration <= 0 {
		errs = append(errs, "engine: lock_ttl must be > 0")
	}
	if c.Engine.LockWait.Duration <= 0 {
		errs = append(errs, "engine: lock_wait must be > 0")
	}

	if c.Mode == "server" || c.Mode == "full" {
		if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, "auth: jwt_secret must be at least 32 bytes")
		}
		if c.Auth.TokenTTL.Duration <= 0 {
			errs = append(errs, "auth: token_ttl must be > 0")
		}
		if c.Auth.LoginMaxSkew.Duration <= 0 {
			errs = append(errs, "auth: login_max_skew must be > 0")
		}
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
		if c.Server.RateLimit < 0 {
			errs = append(errs, "server: rate_limit must be >= 0")
		}
		if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
			errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
		}
	}

	if c.Watcher.Interval.Duration <= 0 {
		errs = append(errs, "watcher: interval must be > 0")
	}

	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
