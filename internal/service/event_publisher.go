package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/predictbase/marketd/internal/domain"
)

// Channels and streams engine events are written to.
const (
	MarketsChannel      = "markets"
	MarketsStream       = "stream:markets"
	MarketChannelPrefix = "ch:market:"
)

// MarketChannel is the per-market channel mirroring MarketsChannel.
func MarketChannel(id domain.MarketID) string {
	return MarketChannelPrefix + id.String()
}

// EventNotifier forwards events to humans.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventPublisher implements domain.EventPublisher. Each event goes to the
// signal bus (global and per-market channels plus the durable stream) and
// the audit log synchronously; chat notifications are queued and delivered
// by Run so slow webhooks never hold up a mutation.
type EventPublisher struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	queue    chan domain.Event
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher. audit and notifier may be nil.
func NewEventPublisher(bus domain.SignalBus, audit domain.AuditStore, notifier EventNotifier, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		queue:    make(chan domain.Event, 256),
		logger:   logger.With(slog.String("component", "event_publisher")),
	}
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

// Publish delivers ev. Delivery errors are joined and returned after every
// sink has been tried.
func (p *EventPublisher) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("event_publisher: marshal %s: %w", ev.Type, err)
	}

	var errs []error
	if p.bus != nil {
		for _, ch := range []string{MarketsChannel, MarketChannel(ev.MarketID)} {
			if err := p.bus.Publish(ctx, ch, payload); err != nil {
				errs = append(errs, err)
			}
		}
		if err := p.bus.StreamAppend(ctx, MarketsStream, payload); err != nil {
			errs = append(errs, err)
		}
	}
	if p.audit != nil {
		if err := p.audit.Log(ctx, string(ev.Type), auditDetail(ev)); err != nil {
			errs = append(errs, err)
		}
	}
	if p.notifier != nil {
		select {
		case p.queue <- ev:
		default:
			p.logger.WarnContext(ctx, "event_publisher: notification queue full, dropping",
				slog.String("type", string(ev.Type)),
				slog.String("market_id", ev.MarketID.String()),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("event_publisher: %s: %w", ev.Type, errors.Join(errs...))
	}
	return nil
}

// Run delivers queued notifications until ctx ends.
func (p *EventPublisher) Run(ctx context.Context) error {
	if p.notifier == nil {
		<-ctx.Done()
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-p.queue:
			if err := p.notifier.NotifyEvent(ctx, ev); err != nil {
				p.logger.WarnContext(ctx, "event_publisher: notify failed",
					slog.String("type", string(ev.Type)),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func auditDetail(ev domain.Event) map[string]any {
	detail := make(map[string]any, len(ev.Data)+3)
	for k, v := range ev.Data {
		detail[k] = v
	}
	detail["event_id"] = ev.ID
	detail["market_id"] = ev.MarketID.String()
	detail["at"] = ev.Timestamp
	return detail
}
