package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/predictbase/marketd/internal/domain"
)

// PlaceBet stakes amount on one side of an open market. Repeated stakes on
// the same side accumulate; a user cannot switch sides once committed.
func (e *Engine) PlaceBet(ctx context.Context, id domain.MarketID, user domain.Identity, choice bool, amount domain.Amount) error {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return fmt.Errorf("engine: place bet %d: %w", id, err)
	}
	defer unlock()

	var committed domain.Market
	err = e.store.Update(ctx, id, func(tx domain.MarketTx) error {
		m := tx.Market()
		if user.IsZero() {
			return fmt.Errorf("empty user: %w", domain.ErrInvalidInput)
		}
		if amount.IsZero() {
			return fmt.Errorf("zero amount: %w", domain.ErrInvalidInput)
		}
		if !m.AcceptsBets(e.now()) {
			return domain.ErrMarketClosed
		}

		pos, ok, err := tx.Position(user)
		if err != nil {
			return err
		}
		if !ok {
			pos = domain.Position{MarketID: id, User: user, Choice: choice}
		}
		if pos.HasBet() && pos.Choice != choice {
			return fmt.Errorf("choice locked to %s: %w", domain.ChoiceLabel(pos.Choice), domain.ErrInvalidInput)
		}

		stake, overflow := pos.Amount.Add(amount)
		if overflow {
			return fmt.Errorf("position overflow: %w", domain.ErrInvalidInput)
		}
		pool, overflow := m.Pool(choice).Add(amount)
		if overflow {
			return fmt.Errorf("pool overflow: %w", domain.ErrInvalidInput)
		}
		total, _ := m.TotalPool()
		if _, overflow := total.Add(amount); overflow {
			return fmt.Errorf("total pool overflow: %w", domain.ErrInvalidInput)
		}

		if choice {
			m.YesPool = pool
		} else {
			m.NoPool = pool
		}
		pos.Amount = stake
		pos.Choice = choice
		tx.SetPosition(pos)
		tx.SetMarket(m)
		committed = m
		return nil
	})
	if err != nil {
		return fmt.Errorf("engine: place bet %d: %w", id, err)
	}
	e.cacheCommitted(ctx, committed)

	e.logger.InfoContext(ctx, "engine: bet placed",
		slog.String("market_id", id.String()),
		slog.String("user", string(user)),
		slog.String("choice", domain.ChoiceLabel(choice)),
		slog.String("amount", amount.String()),
	)
	e.publish(ctx, domain.EventBetPlaced, id, map[string]any{
		"user":   user,
		"choice": choice,
		"amount": amount,
	})
	return nil
}
