package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

// CreateMarket opens a new market that accepts stakes until endTime.
func (e *Engine) CreateMarket(ctx context.Context, question string, endTime time.Time, creator domain.Identity) (domain.MarketID, error) {
	q := strings.TrimSpace(question)
	if q == "" {
		return 0, fmt.Errorf("engine: create market: empty question: %w", domain.ErrInvalidInput)
	}
	if creator.IsZero() {
		return 0, fmt.Errorf("engine: create market: empty creator: %w", domain.ErrInvalidInput)
	}
	now := e.now()
	end := normalizeTime(endTime)
	if !end.After(now) {
		return 0, fmt.Errorf("engine: create market: end time %s is not in the future: %w",
			end.Format(time.RFC3339), domain.ErrInvalidInput)
	}

	m, err := e.store.CreateMarket(ctx, domain.Market{
		Question:  q,
		EndTime:   end,
		Creator:   creator,
		CreatedAt: now,
	})
	if err != nil {
		return 0, fmt.Errorf("engine: create market: %w", err)
	}

	e.logger.InfoContext(ctx, "engine: market created",
		slog.String("market_id", m.ID.String()),
		slog.String("creator", string(creator)),
		slog.Time("end_time", end),
	)
	e.publish(ctx, domain.EventMarketCreated, m.ID, map[string]any{
		"question": m.Question,
		"end_time": m.EndTime,
		"creator":  m.Creator,
	})
	return m.ID, nil
}

// ResolveMarket records the outcome of a market whose end time has passed.
// Checks run in order: not found, unauthorized, too early, already resolved.
func (e *Engine) ResolveMarket(ctx context.Context, id domain.MarketID, outcome bool, caller domain.Identity) error {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: resolve market %d: %w", id, err)
	}
	defer unlock()

	var committed domain.Market
	err = e.store.Update(ctx, id, func(tx domain.MarketTx) error {
		m := tx.Market()
		if !e.resolver.CanResolve(m, caller) {
			return domain.ErrUnauthorized
		}
		now := e.now()
		if now.Before(m.EndTime) {
			return domain.ErrTooEarly
		}
		if m.Resolved {
			return domain.ErrAlreadyResolved
		}
		m.Resolved = true
		m.Outcome = outcome
		m.ResolvedAt = &now
		tx.SetMarket(m)
		committed = m
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine: resolve market %d: %w", id, err)
	}
	e.cacheCommitted(ctx, committed)

	e.logger.InfoContext(ctx, "engine: market resolved",
		slog.String("market_id", id.String()),
		slog.String("outcome", domain.ChoiceLabel(outcome)),
		slog.String("caller", string(caller)),
	)
	e.publish(ctx, domain.EventMarketResolved, id, map[string]any{
		"outcome": outcome,
	})
	return nil
}
