package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/store/memory"
)

type mapCache struct {
	mu          sync.Mutex
	markets     map[domain.MarketID]domain.Market
	failSet     bool
	invalidated []domain.MarketID
}

func newMapCache() *mapCache {
	return &mapCache{markets: make(map[domain.MarketID]domain.Market)}
}

func (c *mapCache) Set(_ context.Context, m domain.Market) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("cache down")
	}
	c.markets[m.ID] = m
	return nil
}

func (c *mapCache) Get(_ context.Context, id domain.MarketID) (domain.Market, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return m, nil
}

func (c *mapCache) Invalidate(_ context.Context, id domain.MarketID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.markets, id)
	c.invalidated = append(c.invalidated, id)
	return nil
}

// gatedStore pauses the next GetMarket after it has read the ledger, until
// release is closed.
type gatedStore struct {
	*memory.LedgerStore
	armed   atomic.Bool
	read    chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	m, err := s.LedgerStore.GetMarket(ctx, id)
	if s.armed.CompareAndSwap(true, false) {
		close(s.read)
		<-s.release
	}
	return m, err
}

func newCachedEngine(t *testing.T, store domain.LedgerStore, cache domain.MarketCache) (*Engine, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(t0)
	eng, err := New(Config{}, Deps{Store: store, Clock: clk, Cache: cache},
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	return eng, clk
}

func TestSlowReadDoesNotCacheStaleMarket(t *testing.T) {
	ctx := context.Background()
	store := &gatedStore{
		LedgerStore: memory.NewLedgerStore(),
		read:        make(chan struct{}),
		release:     make(chan struct{}),
	}
	cache := newMapCache()
	eng, _ := newCachedEngine(t, store, cache)

	id, err := eng.CreateMarket(ctx, "Will it rain?", t0.Add(time.Hour), "creator")
	if err != nil {
		t.Fatal(err)
	}

	store.armed.Store(true)
	done := make(chan error, 1)
	go func() {
		_, err := eng.Market(ctx, id)
		done <- err
	}()
	<-store.read // the reader holds the pre-bet market

	if err := eng.PlaceBet(ctx, id, "alice", true, amt(100)); err != nil {
		t.Fatalf("PlaceBet: %v", err)
	}
	close(store.release)
	if err := <-done; err != nil {
		t.Fatalf("Market: %v", err)
	}

	m, err := eng.Market(ctx, id)
	if err != nil {
		t.Fatal(err)
	}
	pos, err := eng.UserBet(ctx, id, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if m.YesPool.Cmp(amt(100)) != 0 || m.YesPool.Cmp(pos.Amount) != 0 {
		t.Errorf("cached yes pool = %s, position = %s, want 100", m.YesPool, pos.Amount)
	}
}

func TestMutatorsWriteThroughCache(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	eng, clk := newCachedEngine(t, memory.NewLedgerStore(), cache)

	id, err := eng.CreateMarket(ctx, "Will it rain?", t0.Add(time.Hour), "creator")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, id); err == nil {
		t.Fatal("CreateMarket should not fill the cache")
	}

	if err := eng.PlaceBet(ctx, id, "bob", false, amt(40)); err != nil {
		t.Fatal(err)
	}
	cached, err := cache.Get(ctx, id)
	if err != nil || cached.NoPool.Cmp(amt(40)) != 0 {
		t.Fatalf("after bet cached = %+v, err = %v", cached, err)
	}

	clk.Set(t0.Add(time.Hour))
	if err := eng.ResolveMarket(ctx, id, false, "creator"); err != nil {
		t.Fatal(err)
	}
	cached, err = cache.Get(ctx, id)
	if err != nil || !cached.Resolved || cached.Outcome {
		t.Fatalf("after resolve cached = %+v, err = %v", cached, err)
	}
}

func TestFailedCacheWriteDropsEntry(t *testing.T) {
	ctx := context.Background()
	cache := newMapCache()
	eng, _ := newCachedEngine(t, memory.NewLedgerStore(), cache)

	id, err := eng.CreateMarket(ctx, "Will it rain?", t0.Add(time.Hour), "creator")
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.PlaceBet(ctx, id, "alice", true, amt(5)); err != nil {
		t.Fatal(err)
	}

	cache.failSet = true
	if err := eng.PlaceBet(ctx, id, "alice", true, amt(5)); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Get(ctx, id); err == nil {
		t.Error("stale entry kept after a failed cache write")
	}
	if len(cache.invalidated) != 1 || cache.invalidated[0] != id {
		t.Errorf("invalidated = %v", cache.invalidated)
	}
	m, err := eng.Market(ctx, id)
	if err != nil || m.YesPool.Cmp(amt(10)) != 0 {
		t.Errorf("Market = %+v, err = %v", m, err)
	}
}
