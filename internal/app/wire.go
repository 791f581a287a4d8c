package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	s3blob "github.com/predictbase/marketd/internal/blob/s3"
	"github.com/predictbase/marketd/internal/cache/redis"
	"github.com/predictbase/marketd/internal/config"
	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/notify"
	"github.com/predictbase/marketd/internal/server/handler"
	"github.com/predictbase/marketd/internal/service"
	"github.com/predictbase/marketd/internal/store/memory"
	"github.com/predictbase/marketd/internal/store/postgres"
	"github.com/predictbase/marketd/internal/store/sqlite"
)

// Dependencies bundles the infrastructure the modes run on. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	Ledger domain.LedgerStore
	Audit  domain.AuditStore

	// Redis-backed when redis.enabled; Cache, Locks and Limiter are nil
	// otherwise and Bus is an in-process LocalBus.
	Cache   domain.MarketCache
	Locks   domain.LockManager
	Limiter domain.RateLimiter
	Bus     domain.SignalBus

	// Set when s3.enabled.
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	Notifier *notify.Notifier

	// Checks are reported by the health endpoint.
	Checks map[string]handler.Pinger
}

// Wire constructs all concrete dependency implementations from cfg and
// returns them together with a cleanup function that releases resources in
// reverse order.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	deps := &Dependencies{Checks: make(map[string]handler.Pinger)}

	// --- Ledger ---
	switch strings.ToLower(cfg.Ledger.Driver) {
	case "postgres":
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:             cfg.Postgres.DSN,
			Host:            cfg.Postgres.Host,
			Port:            cfg.Postgres.Port,
			Database:        cfg.Postgres.Database,
			User:            cfg.Postgres.User,
			Password:        cfg.Postgres.Password,
			SSLMode:         cfg.Postgres.SSLMode,
			MaxConns:        cfg.Postgres.PoolMaxConns,
			MinConns:        cfg.Postgres.PoolMinConns,
			ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime.Duration,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: postgres: %w", err))
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations || cfg.Mode == "migrate" {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail(fmt.Errorf("wire: postgres migrations: %w", err))
			}
			logger.InfoContext(ctx, "wire: postgres migrations applied")
		}

		pool := pgClient.Pool()
		deps.Ledger = postgres.NewLedgerStore(pool)
		deps.Audit = postgres.NewAuditStore(pool)
		deps.Checks["postgres"] = pool.Ping

	case "sqlite":
		db, err := sqlite.Open(cfg.Ledger.SQLitePath)
		if err != nil {
			return fail(fmt.Errorf("wire: %w", err))
		}
		closers = append(closers, func() { _ = sqlite.Close(db) })
		deps.Ledger = sqlite.NewLedgerStore(db)
		deps.Audit = sqlite.NewAuditStore(db)
		deps.Checks["sqlite"] = func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		}

	default:
		deps.Ledger = memory.NewLedgerStore()
		deps.Audit = memory.NewAuditStore(0)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: redis: %w", err))
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Cache = redis.NewMarketCache(redisClient, cfg.Redis.CacheTTL.Duration)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Bus = redis.NewSignalBus(redisClient)
		deps.Checks["redis"] = redisClient.Ping
	} else {
		logger.InfoContext(ctx, "wire: redis disabled, using in-process locks and event bus")
		deps.Bus = service.NewLocalBus(0)
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail(fmt.Errorf("wire: s3: %w", err))
		}
		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Checks["s3"] = s3Client.Health
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	if len(senders) > 0 {
		deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)
	}

	return deps, cleanup, nil
}

// adminIdentities converts configured admin addresses to the checksummed
// form identities take at login. Non-address entries are kept verbatim.
func adminIdentities(admins []string) []domain.Identity {
	out := make([]domain.Identity, 0, len(admins))
	for _, a := range admins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if common.IsHexAddress(a) {
			a = common.HexToAddress(a).Hex()
		}
		out = append(out, domain.Identity(a))
	}
	return out
}
