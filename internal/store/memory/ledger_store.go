// Package memory is an in-process domain.LedgerStore for tests and
// single-node deployments that do not need durability.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/predictbase/marketd/internal/domain"
)

type positionKey struct {
	market domain.MarketID
	user   domain.Identity
}

// LedgerStore keeps markets and positions in maps. Readers take the store
// RWMutex; an Update additionally holds a per-market mutex for its whole
// duration and applies its staged writes under one write lock at commit.
type LedgerStore struct {
	mu        sync.RWMutex
	nextID    domain.MarketID
	markets   map[domain.MarketID]domain.Market
	positions map[positionKey]domain.Position

	txMu    sync.Mutex
	marketM map[domain.MarketID]*sync.Mutex
}

// NewLedgerStore returns an empty store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		markets:   make(map[domain.MarketID]domain.Market),
		positions: make(map[positionKey]domain.Position),
		marketM:   make(map[domain.MarketID]*sync.Mutex),
	}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// CreateMarket assigns the next id and stores m.
func (s *LedgerStore) CreateMarket(_ context.Context, m domain.Market) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	m.ID = s.nextID
	s.markets[m.ID] = m
	return m, nil
}

// Update runs fn against a staged copy of market id.
func (s *LedgerStore) Update(ctx context.Context, id domain.MarketID, fn func(tx domain.MarketTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := s.GetMarket(ctx, id); err != nil {
		return err
	}
	mm := s.marketMutex(id)
	mm.Lock()
	defer mm.Unlock()

	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return err
	}

	tx := &marketTx{store: s, market: m, staged: make(map[domain.Identity]domain.Position)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	if tx.dirty {
		s.markets[id] = tx.market
	}
	for user, p := range tx.staged {
		s.positions[positionKey{market: id, user: user}] = p
	}
	s.mu.Unlock()
	return nil
}

func (s *LedgerStore) marketMutex(id domain.MarketID) *sync.Mutex {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	mm, ok := s.marketM[id]
	if !ok {
		mm = &sync.Mutex{}
		s.marketM[id] = mm
	}
	return mm
}

// GetMarket returns market id.
func (s *LedgerStore) GetMarket(_ context.Context, id domain.MarketID) (domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("memory: market %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

// ListMarkets returns every market in id order.
func (s *LedgerStore) ListMarkets(_ context.Context) ([]domain.Market, error) {
	s.mu.RLock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetPosition returns user's position on market id.
func (s *LedgerStore) GetPosition(_ context.Context, id domain.MarketID, user domain.Identity) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[positionKey{market: id, user: user}]
	if !ok {
		return domain.Position{}, fmt.Errorf("memory: position %d/%s: %w", id, user, domain.ErrNotFound)
	}
	return p, nil
}

// ListPositions returns the positions on market id ordered by user.
func (s *LedgerStore) ListPositions(_ context.Context, id domain.MarketID) ([]domain.Position, error) {
	s.mu.RLock()
	var out []domain.Position
	for k, p := range s.positions {
		if k.market == id {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].User < out[j].User })
	return out, nil
}

type marketTx struct {
	store  *LedgerStore
	market domain.Market
	dirty  bool
	staged map[domain.Identity]domain.Position
}

func (tx *marketTx) Market() domain.Market { return tx.market }

func (tx *marketTx) SetMarket(m domain.Market) {
	m.ID = tx.market.ID
	tx.market = m
	tx.dirty = true
}

func (tx *marketTx) Position(user domain.Identity) (domain.Position, bool, error) {
	if p, ok := tx.staged[user]; ok {
		return p, true, nil
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()
	p, ok := tx.store.positions[positionKey{market: tx.market.ID, user: user}]
	return p, ok, nil
}

func (tx *marketTx) SetPosition(p domain.Position) {
	p.MarketID = tx.market.ID
	tx.staged[p.User] = p
}
