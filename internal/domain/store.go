package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketTx is the view of one market inside a ledger transaction. Writes made
// through SetMarket and SetPosition are staged and become visible together
// when the transaction commits.
type MarketTx interface {
	Market() Market
	SetMarket(m Market)
	// Position returns the user's position and whether one exists.
	Position(user Identity) (Position, bool, error)
	SetPosition(p Position)
}

// LedgerStore owns markets and positions.
type LedgerStore interface {
	// CreateMarket assigns the next id and stores m.
	CreateMarket(ctx context.Context, m Market) (Market, error)
	// Update runs fn as one atomic unit against market id. If fn returns an
	// error nothing is written and the error is returned unchanged.
	Update(ctx context.Context, id MarketID, fn func(tx MarketTx) error) error
	GetMarket(ctx context.Context, id MarketID) (Market, error)
	// ListMarkets returns every market in id order.
	ListMarkets(ctx context.Context) ([]Market, error)
	GetPosition(ctx context.Context, id MarketID, user Identity) (Position, error)
	ListPositions(ctx context.Context, id MarketID) ([]Position, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
