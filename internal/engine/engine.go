// Package engine implements market lifecycle, wager accounting, settlement
// and queries on top of a domain.LedgerStore.
//
// Every mutation runs under a per-market lock and inside a single ledger
// transaction; events are published only after the transaction commits.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
)

// Config tunes the engine's locking behaviour.
type Config struct {
	// LockTTL is the lifetime of a distributed market lock.
	LockTTL time.Duration
	// LockWait bounds how long a mutator waits for a distributed lock.
	LockWait time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{LockTTL: 10 * time.Second, LockWait: 5 * time.Second}
}

// Deps are the engine's collaborators. Store is required; Clock defaults to
// clock.System and Resolver to CreatorResolver. Events, Cache and Locks are
// optional.
type Deps struct {
	Store    domain.LedgerStore
	Clock    clock.Clock
	Resolver Resolver
	Events   domain.EventPublisher
	Cache    domain.MarketCache
	Locks    domain.LockManager
}

// Engine is safe for concurrent use.
type Engine struct {
	store    domain.LedgerStore
	clock    clock.Clock
	resolver Resolver
	events   domain.EventPublisher
	cache    domain.MarketCache
	locks    *locker
	logger   *slog.Logger
}

// New creates an Engine.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Engine, error) {
	if deps.Store == nil {
		return nil, errors.New("engine: ledger store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = clock.System{}
	}
	if deps.Resolver == nil {
		deps.Resolver = CreatorResolver{}
	}
	def := DefaultConfig()
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = def.LockWait
	}
	return &Engine{
		store:    deps.Store,
		clock:    deps.Clock,
		resolver: deps.Resolver,
		events:   deps.Events,
		cache:    deps.Cache,
		locks:    newLocker(deps.Locks, cfg.LockTTL, cfg.LockWait),
		logger:   logger.With(slog.String("component", "engine")),
	}, nil
}

// now returns the clock reading at the precision every ledger backend keeps.
func (e *Engine) now() time.Time {
	return normalizeTime(e.clock.Now())
}

func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// publish emits an event after a committed mutation. Delivery failures are
// logged; the mutation itself has already succeeded.
func (e *Engine) publish(ctx context.Context, typ domain.EventType, id domain.MarketID, data map[string]any) {
	if e.events == nil {
		return
	}
	ev := domain.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		MarketID:  id,
		Data:      data,
		Timestamp: e.now(),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.WarnContext(ctx, "engine: publish event failed",
			slog.String("type", string(typ)),
			slog.String("market_id", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// cacheCommitted writes a committed market through to the cache. Callers
// hold the market lock, so writes reach the cache in commit order. When the
// write fails the entry is dropped so readers fall back to the ledger.
func (e *Engine) cacheCommitted(ctx context.Context, m domain.Market) {
	if e.cache == nil {
		return
	}
	err := e.cache.Set(ctx, m)
	if err == nil {
		return
	}
	e.logger.WarnContext(ctx, "engine: cache write failed",
		slog.String("market_id", m.ID.String()),
		slog.String("error", err.Error()),
	)
	if err := e.cache.Invalidate(ctx, m.ID); err != nil {
		e.logger.WarnContext(ctx, "engine: cache invalidate failed",
			slog.String("market_id", m.ID.String()),
			slog.String("error", err.Error()),
		)
	}
}
