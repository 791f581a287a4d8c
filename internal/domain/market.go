package domain

import (
	"strconv"
	"time"
)

// MarketID is assigned by the ledger store, starting at 1.
type MarketID uint64

func (id MarketID) String() string { return strconv.FormatUint(uint64(id), 10) }

// ParseMarketID parses a decimal market id.
func ParseMarketID(s string) (MarketID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, ErrInvalidInput
	}
	return MarketID(n), nil
}

// MarketState is derived from a market and the current time.
type MarketState string

const (
	MarketOpen     MarketState = "open"
	MarketClosed   MarketState = "closed"
	MarketResolved MarketState = "resolved"
)

// Market is a binary YES/NO question with pooled stakes.
// Outcome is only meaningful once Resolved is set; true means YES.
type Market struct {
	ID         MarketID   `json:"id"`
	Question   string     `json:"question"`
	EndTime    time.Time  `json:"end_time"`
	Creator    Identity   `json:"creator"`
	CreatedAt  time.Time  `json:"created_at"`
	Resolved   bool       `json:"resolved"`
	Outcome    bool       `json:"outcome"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	YesPool    Amount     `json:"yes_pool"`
	NoPool     Amount     `json:"no_pool"`
}

// State returns the lifecycle state at now.
func (m Market) State(now time.Time) MarketState {
	switch {
	case m.Resolved:
		return MarketResolved
	case now.Before(m.EndTime):
		return MarketOpen
	default:
		return MarketClosed
	}
}

// AcceptsBets reports whether a stake placed at now would be accepted.
func (m Market) AcceptsBets(now time.Time) bool { return m.State(now) == MarketOpen }

// Pool returns the pool backing the given side.
func (m Market) Pool(choice bool) Amount {
	if choice {
		return m.YesPool
	}
	return m.NoPool
}

// TotalPool returns YesPool+NoPool and whether the sum overflowed.
func (m Market) TotalPool() (Amount, bool) { return m.YesPool.Add(m.NoPool) }
