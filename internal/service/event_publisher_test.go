package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type memAudit struct {
	mu      sync.Mutex
	entries []domain.AuditEntry
	err     error
}

func (a *memAudit) Log(_ context.Context, event string, detail map[string]any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return a.err
	}
	a.entries = append(a.entries, domain.AuditEntry{Event: event, Detail: detail})
	return nil
}

func (a *memAudit) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AuditEntry(nil), a.entries...), nil
}

type chanNotifier struct{ got chan domain.Event }

func (n chanNotifier) NotifyEvent(_ context.Context, ev domain.Event) error {
	n.got <- ev
	return nil
}

func TestEventPublisherFansOut(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewLocalBus(0)
	all, _ := bus.Subscribe(ctx, MarketsChannel)
	one, _ := bus.Subscribe(ctx, "ch:market:*")
	audit := &memAudit{}
	notifier := chanNotifier{got: make(chan domain.Event, 1)}

	p := NewEventPublisher(bus, audit, notifier, discardLogger())
	go func() { _ = p.Run(ctx) }()

	ev := domain.Event{
		ID:        "ev-1",
		Type:      domain.EventBetPlaced,
		MarketID:  9,
		Data:      map[string]any{"user": "0xabc", "amount": domain.NewAmount(3), "choice": true},
		Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	if err := p.Publish(ctx, ev); err != nil {
		t.Fatal(err)
	}

	for name, ch := range map[string]<-chan []byte{"global": all, "per-market": one} {
		select {
		case raw := <-ch:
			var got struct {
				Type     domain.EventType `json:"type"`
				MarketID domain.MarketID  `json:"market_id"`
				Data     map[string]any   `json:"data"`
			}
			if err := json.Unmarshal(raw, &got); err != nil {
				t.Fatalf("%s: %v", name, err)
			}
			if got.Type != domain.EventBetPlaced || got.MarketID != 9 || got.Data["amount"] != "3" {
				t.Errorf("%s payload = %s", name, raw)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s channel received nothing", name)
		}
	}

	msgs, _ := bus.StreamRead(ctx, MarketsStream, "0", 10)
	if len(msgs) != 1 {
		t.Errorf("stream entries = %d, want 1", len(msgs))
	}

	entries, _ := audit.List(ctx, domain.ListOpts{})
	if len(entries) != 1 || entries[0].Event != "bet_placed" || entries[0].Detail["market_id"] != "9" {
		t.Errorf("audit = %+v", entries)
	}

	select {
	case got := <-notifier.got:
		if got.ID != "ev-1" {
			t.Errorf("notified %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("notifier not called")
	}
}

func TestEventPublisherReportsSinkErrors(t *testing.T) {
	audit := &memAudit{err: errors.New("db down")}
	p := NewEventPublisher(NewLocalBus(0), audit, nil, discardLogger())
	err := p.Publish(context.Background(), domain.Event{Type: domain.EventMarketCreated, MarketID: 1})
	if err == nil {
		t.Fatal("audit failure not reported")
	}
}
