package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

// ActiveMarkets returns markets still accepting stakes, in creation order.
func (e *Engine) ActiveMarkets(ctx context.Context) ([]domain.Market, error) {
	all, err := e.store.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: active markets: %w", err)
	}
	now := e.now()
	active := make([]domain.Market, 0, len(all))
	for _, m := range all {
		if now.Before(m.EndTime) {
			active = append(active, m)
		}
	}
	return active, nil
}

// AllMarkets returns every market in creation order.
func (e *Engine) AllMarkets(ctx context.Context) ([]domain.Market, error) {
	all, err := e.store.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("engine: all markets: %w", err)
	}
	return all, nil
}

// UserBet returns user's position on market id. A user without a stake, or
// an unknown market, yields the zero Position rather than an error.
func (e *Engine) UserBet(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Position, error) {
	pos, err := e.store.GetPosition(ctx, id, user)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Position{MarketID: id, User: user}, nil
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("engine: user bet %d: %w", id, err)
	}
	return pos, nil
}

// Market looks up one market, consulting the cache first. The cache is only
// written by mutators under the market lock, so a miss reads the ledger
// without refilling it.
func (e *Engine) Market(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	if e.cache != nil {
		if m, err := e.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}
	m, err := e.store.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("engine: market %d: %w", id, err)
	}
	return m, nil
}

// Positions returns every position on market id.
func (e *Engine) Positions(ctx context.Context, id domain.MarketID) ([]domain.Position, error) {
	if _, err := e.store.GetMarket(ctx, id); err != nil {
		return nil, fmt.Errorf("engine: positions %d: %w", id, err)
	}
	ps, err := e.store.ListPositions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("engine: positions %d: %w", id, err)
	}
	return ps, nil
}

// Now exposes the engine clock to collaborators that classify markets.
func (e *Engine) Now() time.Time { return e.now() }
