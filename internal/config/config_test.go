package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func validConfig() Config {
	cfg := Defaults()
	cfg.Auth.JWTSecret = strings.Repeat("k", 32)
	return cfg
}

func TestDefaultsValidate(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults with secret should validate: %v", err)
	}
	bare := Defaults()
	if err := bare.Validate(); err == nil || !strings.Contains(err.Error(), "jwt_secret") {
		t.Fatalf("missing jwt secret not reported: %v", err)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "marketd.toml", `
mode = "server"
log_level = "debug"

[network]
chain_id = 84532

[ledger]
driver = "sqlite"
sqlite_path = "/tmp/ledger.db"

[engine]
resolver = "creator_or_admin"
admins = ["0xabc"]
lock_wait = "2s"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "server" || cfg.LogLevel != "debug" {
		t.Errorf("mode/log_level = %s/%s", cfg.Mode, cfg.LogLevel)
	}
	if cfg.Network.ChainID != 84532 || cfg.Network.Decimals != 18 {
		t.Errorf("network = %+v", cfg.Network)
	}
	if cfg.Ledger.Driver != "sqlite" || cfg.Ledger.SQLitePath != "/tmp/ledger.db" {
		t.Errorf("ledger = %+v", cfg.Ledger)
	}
	if cfg.Engine.LockWait.Duration != 2*time.Second {
		t.Errorf("lock_wait = %v", cfg.Engine.LockWait.Duration)
	}
	if cfg.Engine.LockTTL.Duration != 10*time.Second {
		t.Errorf("lock_ttl default lost: %v", cfg.Engine.LockTTL.Duration)
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "marketd.yaml", `
mode: worker
ledger:
  driver: postgres
postgres:
  dsn: postgres://u:p@db/marketd
watcher:
  interval: 3s
notify:
  events: [market_resolved]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Mode != "worker" || cfg.Ledger.Driver != "postgres" {
		t.Errorf("mode/driver = %s/%s", cfg.Mode, cfg.Ledger.Driver)
	}
	if cfg.Postgres.DSN != "postgres://u:p@db/marketd" {
		t.Errorf("dsn = %s", cfg.Postgres.DSN)
	}
	if cfg.Watcher.Interval.Duration != 3*time.Second {
		t.Errorf("interval = %v", cfg.Watcher.Interval.Duration)
	}
	if len(cfg.Notify.Events) != 1 || cfg.Notify.Events[0] != "market_resolved" {
		t.Errorf("events = %v", cfg.Notify.Events)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("worker config should validate without auth: %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	path := writeFile(t, "marketd.toml", `mode = "full"`)
	t.Setenv("MARKETD_AUTH_JWT_SECRET", "env-secret")
	t.Setenv("MARKETD_NETWORK_CHAIN_ID", "10")
	t.Setenv("MARKETD_ENGINE_ADMINS", " 0xa , ,0xb")
	t.Setenv("MARKETD_ENGINE_LOCK_TTL", "1m")
	t.Setenv("MARKETD_SERVER_PORT", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Auth.JWTSecret != "env-secret" {
		t.Errorf("jwt_secret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Network.ChainID != 10 {
		t.Errorf("chain_id = %d", cfg.Network.ChainID)
	}
	if got := strings.Join(cfg.Engine.Admins, ","); got != "0xa,0xb" {
		t.Errorf("admins = %q", got)
	}
	if cfg.Engine.LockTTL.Duration != time.Minute {
		t.Errorf("lock_ttl = %v", cfg.Engine.LockTTL.Duration)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("unparsable port should keep default, got %d", cfg.Server.Port)
	}
}

func TestValidateCollectsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"driver", func(c *Config) { c.Ledger.Driver = "mongo" }, "unknown driver"},
		{"migrate needs postgres", func(c *Config) { c.Mode = "migrate" }, "migrate requires"},
		{"worker on memory", func(c *Config) { c.Mode = "worker" }, "memory driver"},
		{"admin resolver", func(c *Config) { c.Engine.Resolver = "admin" }, "admins must not be empty"},
		{"archive without s3", func(c *Config) { c.Archive.Enabled = true }, "requires s3.enabled"},
		{"telegram half", func(c *Config) { c.Notify.TelegramToken = "t" }, "set together"},
		{"chain", func(c *Config) { c.Network.ChainID = 0 }, "chain_id"},
		{"redis", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis: addr"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRedactedConfig(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.Password = "pw"
	cfg.Notify.DiscordWebhookURL = "https://discord/hook"
	cfg.Engine.Admins = []string{"0xa"}

	out := RedactedConfig(&cfg)
	if out.Auth.JWTSecret != redacted || out.Postgres.Password != redacted || out.Notify.DiscordWebhookURL != redacted {
		t.Errorf("secrets not redacted: %+v", out)
	}
	if out.Redis.Password != "" {
		t.Errorf("empty secret should stay empty, got %q", out.Redis.Password)
	}
	out.Engine.Admins[0] = "changed"
	if cfg.Engine.Admins[0] != "0xa" {
		t.Error("redacted copy aliases admins slice")
	}
	if cfg.Auth.JWTSecret == redacted {
		t.Error("original mutated")
	}
}
