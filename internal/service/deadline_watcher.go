package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
)

// MarketLister lists every market in creation order.
type MarketLister interface {
	AllMarkets(ctx context.Context) ([]domain.Market, error)
}

// DeadlineWatcher announces market_closed once for every unresolved market
// whose end time passes while the watcher runs.
type DeadlineWatcher struct {
	markets  MarketLister
	events   domain.EventPublisher
	clock    clock.Clock
	interval time.Duration
	lastScan time.Time
	logger   *slog.Logger
}

// NewDeadlineWatcher creates a watcher that scans every interval. Markets
// that closed before the watcher was created are not announced.
func NewDeadlineWatcher(markets MarketLister, events domain.EventPublisher, clk clock.Clock, interval time.Duration, logger *slog.Logger) *DeadlineWatcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DeadlineWatcher{
		markets:  markets,
		events:   events,
		clock:    clk,
		interval: interval,
		lastScan: clk.Now(),
		logger:   logger.With(slog.String("component", "deadline_watcher")),
	}
}

// Run scans on every tick until ctx ends.
func (w *DeadlineWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	w.logger.InfoContext(ctx, "deadline_watcher: started", slog.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := w.Scan(ctx); err != nil {
				w.logger.WarnContext(ctx, "deadline_watcher: scan failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Scan announces markets whose end time fell in (lastScan, now] and returns
// their ids.
func (w *DeadlineWatcher) Scan(ctx context.Context) ([]domain.MarketID, error) {
	now := w.clock.Now()
	markets, err := w.markets.AllMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("deadline_watcher: list markets: %w", err)
	}

	var closed []domain.MarketID
	for _, m := range markets {
		if m.Resolved || !m.EndTime.After(w.lastScan) || m.EndTime.After(now) {
			continue
		}
		closed = append(closed, m.ID)
		err := w.events.Publish(ctx, domain.Event{
			ID:        uuid.NewString(),
			Type:      domain.EventMarketClosed,
			MarketID:  m.ID,
			Data:      map[string]any{"end_time": m.EndTime, "question": m.Question},
			Timestamp: now,
		})
		if err != nil {
			w.logger.WarnContext(ctx, "deadline_watcher: publish failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	w.lastScan = now
	return closed, nil
}
