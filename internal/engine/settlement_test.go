package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/domain"
)

func TestPayout(t *testing.T) {
	resolved := func(outcome bool, yes, no uint64) domain.Market {
		return domain.Market{ID: 1, Resolved: true, Outcome: outcome, YesPool: amt(yes), NoPool: amt(no)}
	}
	tests := []struct {
		name   string
		market domain.Market
		pos    domain.Position
		want   uint64
	}{
		{name: "winner takes share", market: resolved(true, 100, 300), pos: domain.Position{Amount: amt(100), Choice: true}, want: 400},
		{name: "loser gets nothing", market: resolved(true, 100, 300), pos: domain.Position{Amount: amt(300), Choice: false}, want: 0},
		{name: "truncates", market: resolved(false, 10, 3), pos: domain.Position{Amount: amt(1), Choice: false}, want: 4},
		{name: "refund when yes empty", market: resolved(true, 0, 50), pos: domain.Position{Amount: amt(50), Choice: false}, want: 50},
		{name: "refund when no empty", market: resolved(false, 80, 0), pos: domain.Position{Amount: amt(80), Choice: true}, want: 80},
		{name: "sole winner", market: resolved(true, 5, 0), pos: domain.Position{Amount: amt(5), Choice: true}, want: 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Payout(tt.market, tt.pos)
			if err != nil {
				t.Fatal(err)
			}
			if got.Cmp(amt(tt.want)) != 0 {
				t.Errorf("Payout = %s, want %d", got, tt.want)
			}
		})
	}

	if _, err := Payout(domain.Market{}, domain.Position{Amount: amt(1)}); !errors.Is(err, domain.ErrNotResolved) {
		t.Errorf("unresolved err = %v", err)
	}
}

func TestPayoutLargeAmounts(t *testing.T) {
	ether, _ := domain.ParseAmount("1000000000000000000")
	big, _ := domain.ParseAmount("50000000000000000000000000000000000000000000000000000000000000000000000")
	m := domain.Market{Resolved: true, Outcome: true, YesPool: ether, NoPool: big}
	got, err := Payout(m, domain.Position{Amount: ether, Choice: true})
	if err != nil {
		t.Fatal(err)
	}
	want, _ := ether.Add(big)
	if got.Cmp(want) != 0 {
		t.Errorf("Payout = %s, want %s", got, want)
	}
}

// Random markets: pools always equal the sum of stakes and the sum of all
// payouts never exceeds the total pool.
func TestSettlementConservation(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 25; round++ {
		t.Run(fmt.Sprintf("round-%d", round), func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			id := h.market(t, "creator")

			users := 1 + rng.Intn(8)
			var yes, no uint64
			for i := 0; i < users; i++ {
				user := domain.Identity(fmt.Sprintf("u%d", i))
				choice := rng.Intn(2) == 0
				for n := 1 + rng.Intn(3); n > 0; n-- {
					stake := uint64(1 + rng.Intn(1_000_000))
					h.bet(t, id, user, choice, stake)
					if choice {
						yes += stake
					} else {
						no += stake
					}
				}
			}

			m, _ := h.eng.Market(ctx, id)
			if m.YesPool.Cmp(amt(yes)) != 0 || m.NoPool.Cmp(amt(no)) != 0 {
				t.Fatalf("pools yes=%s no=%s, want %d/%d", m.YesPool, m.NoPool, yes, no)
			}
			positions, _ := h.eng.Positions(ctx, id)
			var staked uint64
			for _, p := range positions {
				n, _ := p.Amount.Uint64()
				staked += n
			}
			if staked != yes+no {
				t.Fatalf("sum of positions %d != pools %d", staked, yes+no)
			}

			h.clock.Advance(time.Hour)
			outcome := rng.Intn(2) == 0
			if err := h.eng.ResolveMarket(ctx, id, outcome, "creator"); err != nil {
				t.Fatal(err)
			}

			var paid uint64
			for _, p := range positions {
				got, err := h.eng.ClaimWinnings(ctx, id, p.User)
				if err != nil && !errors.Is(err, domain.ErrNothingToClaim) {
					t.Fatalf("claim %s: %v", p.User, err)
				}
				n, _ := got.Uint64()
				paid += n
			}
			if paid > yes+no {
				t.Errorf("paid %d exceeds pool %d", paid, yes+no)
			}
			winning := no
			if outcome {
				winning = yes
			}
			if winning == 0 && paid != yes+no {
				t.Errorf("refund total %d, want %d", paid, yes+no)
			}
		})
	}
}

func TestConcurrentBetsKeepPoolsConsistent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.market(t, "creator")

	const workers, perWorker = 16, 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			user := domain.Identity(fmt.Sprintf("u%d", w))
			for i := 0; i < perWorker; i++ {
				if err := h.eng.PlaceBet(ctx, id, user, w%2 == 0, amt(1)); err != nil {
					t.Errorf("PlaceBet: %v", err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	m, _ := h.eng.Market(ctx, id)
	total, _ := m.TotalPool()
	if total.Cmp(amt(workers*perWorker)) != 0 {
		t.Errorf("total pool = %s, want %d", total, workers*perWorker)
	}
	if m.YesPool.Cmp(m.NoPool) != 0 {
		t.Errorf("yes=%s no=%s, want equal", m.YesPool, m.NoPool)
	}
}

func TestConcurrentClaimsPayOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := h.market(t, "creator")
	h.bet(t, id, "winner", true, 10)
	h.bet(t, id, "loser", false, 30)
	h.clock.Advance(time.Hour)
	if err := h.eng.ResolveMarket(ctx, id, true, "creator"); err != nil {
		t.Fatal(err)
	}

	const claimers = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		already int
	)
	for i := 0; i < claimers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := h.eng.ClaimWinnings(ctx, id, "winner")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
				if got.Cmp(amt(40)) != 0 {
					t.Errorf("payout = %s, want 40", got)
				}
			case errors.Is(err, domain.ErrAlreadyClaimed):
				already++
			default:
				t.Errorf("unexpected err: %v", err)
			}
		}()
	}
	wg.Wait()
	if success != 1 || already != claimers-1 {
		t.Errorf("success=%d already=%d", success, already)
	}
}
