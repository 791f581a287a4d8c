package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
)

type staticMarkets []domain.Market

func (s staticMarkets) AllMarkets(context.Context) ([]domain.Market, error) { return s, nil }

type capturePublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (c *capturePublisher) Publish(_ context.Context, ev domain.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func TestDeadlineWatcherAnnouncesOnce(t *testing.T) {
	t0 := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewManual(t0)
	markets := staticMarkets{
		{ID: 1, EndTime: t0.Add(-time.Minute)},                // closed before start
		{ID: 2, EndTime: t0.Add(time.Minute)},                 // closes during run
		{ID: 3, EndTime: t0.Add(time.Minute), Resolved: true}, // resolved
		{ID: 4, EndTime: t0.Add(time.Hour)},                   // still open
	}
	pub := &capturePublisher{}
	w := NewDeadlineWatcher(markets, pub, clk, time.Second, discardLogger())
	ctx := context.Background()

	closed, err := w.Scan(ctx)
	if err != nil || len(closed) != 0 {
		t.Fatalf("first scan = %v, %v", closed, err)
	}

	clk.Advance(2 * time.Minute)
	closed, _ = w.Scan(ctx)
	if len(closed) != 1 || closed[0] != 2 {
		t.Fatalf("second scan = %v, want [2]", closed)
	}

	closed, _ = w.Scan(ctx)
	if len(closed) != 0 {
		t.Errorf("repeat scan = %v", closed)
	}

	if len(pub.events) != 1 || pub.events[0].Type != domain.EventMarketClosed || pub.events[0].MarketID != 2 {
		t.Errorf("events = %+v", pub.events)
	}
}
