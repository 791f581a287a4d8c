package domain

import "time"

// Position is one user's stake in one market. The zero Position (no amount,
// not claimed) means the user has no bet.
type Position struct {
	MarketID  MarketID   `json:"market_id"`
	User      Identity   `json:"user"`
	Amount    Amount     `json:"amount"`
	Choice    bool       `json:"choice"`
	Claimed   bool       `json:"claimed"`
	Payout    Amount     `json:"payout"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
}

// HasBet reports whether the position holds a stake.
func (p Position) HasBet() bool { return !p.Amount.IsZero() }

// ChoiceLabel returns "YES" or "NO".
func ChoiceLabel(choice bool) string {
	if choice {
		return "YES"
	}
	return "NO"
}
