package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/predictbase/marketd/internal/domain"
)

// Payout returns what pos is owed by resolved market m.
//
// When nobody backed the winning side every stake is refunded exactly.
// Otherwise a winning stake s receives floor(s * total / winningPool) and a
// losing stake receives zero.
func Payout(m domain.Market, pos domain.Position) (domain.Amount, error) {
	if !m.Resolved {
		return domain.Amount{}, domain.ErrNotResolved
	}
	winning := m.Pool(m.Outcome)
	if winning.IsZero() {
		return pos.Amount, nil
	}
	if pos.Choice != m.Outcome {
		return domain.Amount{}, nil
	}
	total, overflow := m.TotalPool()
	if overflow {
		return domain.Amount{}, fmt.Errorf("engine: market %d total pool overflows", m.ID)
	}
	payout, overflow := pos.Amount.MulDiv(total, winning)
	if overflow {
		return domain.Amount{}, fmt.Errorf("engine: market %d payout overflows", m.ID)
	}
	return payout, nil
}

// ClaimWinnings settles user's position on a resolved market and returns the
// amount paid. A losing position is closed with a zero payout and the call
// reports ErrNothingToClaim.
func (e *Engine) ClaimWinnings(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Amount, error) {
	unlock, err := e.locks.Lock(ctx, id)
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: claim %d: %w", id, err)
	}
	defer unlock()

	var payout domain.Amount
	err = e.store.Update(ctx, id, func(tx domain.MarketTx) error {
		m := tx.Market()
		pos, ok, err := tx.Position(user)
		if err != nil {
			return err
		}
		if !ok || !pos.HasBet() {
			return fmt.Errorf("no position for %s: %w", user, domain.ErrNotFound)
		}
		if !m.Resolved {
			return domain.ErrNotResolved
		}
		if pos.Claimed {
			return domain.ErrAlreadyClaimed
		}
		payout, err = Payout(m, pos)
		if err != nil {
			return err
		}
		now := e.now()
		pos.Claimed = true
		pos.Payout = payout
		pos.ClaimedAt = &now
		tx.SetPosition(pos)
		return nil
	})
	if err != nil {
		return domain.Amount{}, fmt.Errorf("engine: claim %d: %w", id, err)
	}

	if payout.IsZero() {
		e.logger.InfoContext(ctx, "engine: losing position closed",
			slog.String("market_id", id.String()),
			slog.String("user", string(user)),
		)
		return domain.Amount{}, fmt.Errorf("engine: claim %d: %w", id, domain.ErrNothingToClaim)
	}

	e.logger.InfoContext(ctx, "engine: winnings claimed",
		slog.String("market_id", id.String()),
		slog.String("user", string(user)),
		slog.String("payout", payout.String()),
	)
	e.publish(ctx, domain.EventWinningsClaimed, id, map[string]any{
		"user":   user,
		"payout": payout,
	})
	return payout, nil
}
