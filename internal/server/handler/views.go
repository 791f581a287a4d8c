package handler

import (
	"strings"
	"time"

	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/units"
)

// Units describes how base-unit amounts are displayed.
type Units struct {
	Symbol   string
	Decimals int32
}

type amountView struct {
	Base    domain.Amount `json:"base"`
	Display string        `json:"display"`
	Symbol  string        `json:"symbol"`
}

func (u Units) view(a domain.Amount) amountView {
	return amountView{Base: a, Display: units.Format(a, u.Decimals), Symbol: u.Symbol}
}

// amount reads a request amount given either in base units or as a
// whole-coin decimal. Exactly one must be set.
func (u Units) amount(base domain.Amount, baseSet bool, display string) (domain.Amount, error) {
	switch {
	case baseSet && display != "":
		return domain.Amount{}, errBothAmounts
	case baseSet:
		return base, nil
	case display != "":
		return units.Parse(display, u.Decimals)
	default:
		return domain.Amount{}, errNoAmount
	}
}

type marketView struct {
	ID         domain.MarketID `json:"id"`
	Question   string          `json:"question"`
	EndTime    time.Time       `json:"end_time"`
	Creator    domain.Identity `json:"creator"`
	CreatedAt  time.Time       `json:"created_at"`
	State      string          `json:"state"`
	Resolved   bool            `json:"resolved"`
	Outcome    string          `json:"outcome,omitempty"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
	YesPool    amountView      `json:"yes_pool"`
	NoPool     amountView      `json:"no_pool"`
	TotalPool  amountView      `json:"total_pool"`
}

func (u Units) market(m domain.Market, now time.Time) marketView {
	v := marketView{
		ID:         m.ID,
		Question:   m.Question,
		EndTime:    m.EndTime,
		Creator:    m.Creator,
		CreatedAt:  m.CreatedAt,
		State:      string(m.State(now)),
		Resolved:   m.Resolved,
		ResolvedAt: m.ResolvedAt,
		YesPool:    u.view(m.YesPool),
		NoPool:     u.view(m.NoPool),
	}
	if m.Resolved {
		v.Outcome = domain.ChoiceLabel(m.Outcome)
	}
	total, _ := m.TotalPool()
	v.TotalPool = u.view(total)
	return v
}

type positionView struct {
	MarketID  domain.MarketID `json:"market_id"`
	User      domain.Identity `json:"user"`
	HasBet    bool            `json:"has_bet"`
	Choice    string          `json:"choice,omitempty"`
	Amount    amountView      `json:"amount"`
	Claimed   bool            `json:"claimed"`
	Payout    *amountView     `json:"payout,omitempty"`
	ClaimedAt *time.Time      `json:"claimed_at,omitempty"`
}

func (u Units) position(p domain.Position) positionView {
	v := positionView{
		MarketID:  p.MarketID,
		User:      p.User,
		HasBet:    p.HasBet(),
		Amount:    u.view(p.Amount),
		Claimed:   p.Claimed,
		ClaimedAt: p.ClaimedAt,
	}
	if v.HasBet {
		v.Choice = domain.ChoiceLabel(p.Choice)
	}
	if p.Claimed {
		payout := u.view(p.Payout)
		v.Payout = &payout
	}
	return v
}

// parseChoice accepts "yes" or "no" in any case.
func parseChoice(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes":
		return true, true
	case "no":
		return false, true
	}
	return false, false
}
