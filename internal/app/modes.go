package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/predictbase/marketd/internal/auth"
	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/engine"
	"github.com/predictbase/marketd/internal/server"
	"github.com/predictbase/marketd/internal/server/handler"
	"github.com/predictbase/marketd/internal/server/ws"
	"github.com/predictbase/marketd/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and WebSocket API.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	g, ctx := errgroup.WithContext(ctx)

	eng, _, err := a.buildEngine(ctx, g, deps)
	if err != nil {
		return err
	}
	if err := a.startHTTPServer(ctx, g, deps, eng); err != nil {
		return err
	}
	return g.Wait()
}

// WorkerMode runs the background services: the deadline watcher and, when
// blob storage is configured, the settlement archiver.
func (a *App) WorkerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting worker mode")
	g, ctx := errgroup.WithContext(ctx)

	eng, publisher, err := a.buildEngine(ctx, g, deps)
	if err != nil {
		return err
	}
	a.startWorkers(ctx, g, deps, eng, publisher)
	return g.Wait()
}

// FullMode runs the API and the background services in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	g, ctx := errgroup.WithContext(ctx)

	eng, publisher, err := a.buildEngine(ctx, g, deps)
	if err != nil {
		return err
	}
	if err := a.startHTTPServer(ctx, g, deps, eng); err != nil {
		return err
	}
	a.startWorkers(ctx, g, deps, eng, publisher)
	return g.Wait()
}

// buildEngine creates the settlement engine together with its event
// publisher, whose notification loop is added to g.
func (a *App) buildEngine(ctx context.Context, g *errgroup.Group, deps *Dependencies) (*engine.Engine, *service.EventPublisher, error) {
	var notifier service.EventNotifier
	if deps.Notifier != nil {
		notifier = deps.Notifier
	}
	publisher := service.NewEventPublisher(deps.Bus, deps.Audit, notifier, a.logger)
	g.Go(func() error {
		return publisher.Run(ctx)
	})

	resolver, err := engine.ResolverFor(a.cfg.Engine.Resolver, adminIdentities(a.cfg.Engine.Admins))
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}

	eng, err := engine.New(engine.Config{
		LockTTL:  a.cfg.Engine.LockTTL.Duration,
		LockWait: a.cfg.Engine.LockWait.Duration,
	}, engine.Deps{
		Store:    deps.Ledger,
		Clock:    clock.System{},
		Resolver: resolver,
		Events:   publisher,
		Cache:    deps.Cache,
		Locks:    deps.Locks,
	}, a.logger)
	if err != nil {
		return nil, nil, fmt.Errorf("app: %w", err)
	}
	return eng, publisher, nil
}

func (a *App) startWorkers(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine, publisher *service.EventPublisher) {
	watcher := service.NewDeadlineWatcher(eng, publisher, clock.System{}, a.cfg.Watcher.Interval.Duration, a.logger)
	g.Go(func() error {
		return watcher.Run(ctx)
	})

	if !a.cfg.Archive.Enabled {
		return
	}
	if deps.BlobWriter == nil {
		a.logger.WarnContext(ctx, "archive enabled without blob storage, skipping")
		return
	}
	archiver := service.NewArchiveService(eng, deps.BlobWriter, deps.BlobReader, publisher, clock.System{},
		service.ArchiveConfig{
			ChainID:  a.cfg.Network.ChainID,
			Interval: a.cfg.Archive.Interval.Duration,
			MinAge:   a.cfg.Archive.MinAge.Duration,
		}, a.logger)
	g.Go(func() error {
		return archiver.Run(ctx)
	})
}

func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, eng *engine.Engine) error {
	clk := clock.System{}
	issuer, err := auth.NewIssuer(a.cfg.Auth.JWTSecret, a.cfg.Auth.TokenTTL.Duration, clk)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	authenticator := auth.NewAuthenticator(issuer, a.cfg.Network.ChainID, a.cfg.Auth.LoginMaxSkew.Duration, clk)

	hub := ws.NewHub(deps.Bus, a.logger, ws.Config{
		Mode:      a.cfg.Mode,
		ChainID:   a.cfg.Network.ChainID,
		StartedAt: a.startedAt,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	units := handler.Units{Symbol: a.cfg.Network.Symbol, Decimals: a.cfg.Network.Decimals}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, server.Handlers{
		Health:  handler.NewHealthHandler(a.cfg.Mode, a.cfg.Network.Name, a.cfg.Network.ChainID, deps.Checks, a.logger),
		Auth:    handler.NewAuthHandler(authenticator, a.logger),
		Markets: handler.NewMarketHandler(eng, units, a.logger),
		Bets:    handler.NewBetHandler(eng, units, a.logger),
		Audit:   handler.NewAuditHandler(deps.Audit, a.logger),
	}, server.Deps{
		Verifier: authenticator,
		Limiter:  deps.Limiter,
		Hub:      hub,
	}, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		a.logger.Info("HTTP server shutting down", slog.Int("port", a.cfg.Server.Port))
		return srv.Shutdown(shutCtx)
	})
	return nil
}
