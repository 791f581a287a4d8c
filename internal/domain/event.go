package domain

import (
	"context"
	"time"
)

// EventType names an engine event.
type EventType string

const (
	EventMarketCreated   EventType = "market_created"
	EventBetPlaced       EventType = "bet_placed"
	EventMarketResolved  EventType = "market_resolved"
	EventWinningsClaimed EventType = "winnings_claimed"
	EventMarketClosed    EventType = "market_closed"
	EventMarketArchived  EventType = "market_archived"
)

// Event is emitted after a ledger mutation commits.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	MarketID  MarketID       `json:"market_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// EventPublisher delivers engine events to subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}
