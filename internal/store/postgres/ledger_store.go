package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/predictbase/marketd/internal/domain"
)

// Amounts live in NUMERIC(78,0) columns, which hold any uint256. They cross
// the wire as decimal text in both directions.
const (
	marketColumns = `id, question, end_time, creator, created_at, resolved, outcome,
		resolved_at, yes_pool::text, no_pool::text`
	positionColumns = `market_id, user_id, amount::text, choice, claimed, payout::text, claimed_at`
)

// LedgerStore implements domain.LedgerStore using PostgreSQL.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// CreateMarket inserts m and returns it with the id the sequence assigned.
func (s *LedgerStore) CreateMarket(ctx context.Context, m domain.Market) (domain.Market, error) {
	const query = `
		INSERT INTO markets (question, end_time, creator, created_at, yes_pool, no_pool)
		VALUES ($1, $2, $3, $4, $5::text::numeric, $6::text::numeric)
		RETURNING ` + marketColumns
	created, err := scanMarket(s.pool.QueryRow(ctx, query,
		m.Question, m.EndTime, string(m.Creator), m.CreatedAt, m.YesPool.String(), m.NoPool.String()))
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: create market: %w", err)
	}
	return created, nil
}

// Update locks the market row and runs fn. Staged writes are flushed and the
// transaction committed only if fn succeeds.
func (s *LedgerStore) Update(ctx context.Context, id domain.MarketID, fn func(tx domain.MarketTx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	m, err := scanMarket(tx.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1 FOR UPDATE`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("postgres: lock market %d: %w", id, err)
	}

	mtx := &marketTx{ctx: ctx, tx: tx, market: m, staged: make(map[domain.Identity]domain.Position)}
	if err := fn(mtx); err != nil {
		return err
	}

	if mtx.dirty {
		const query = `
			UPDATE markets
			SET resolved = $2, outcome = $3, resolved_at = $4,
			    yes_pool = $5::text::numeric, no_pool = $6::text::numeric
			WHERE id = $1`
		_, err := tx.Exec(ctx, query, int64(id), mtx.market.Resolved, mtx.market.Outcome,
			mtx.market.ResolvedAt, mtx.market.YesPool.String(), mtx.market.NoPool.String())
		if err != nil {
			return fmt.Errorf("postgres: update market %d: %w", id, err)
		}
	}

	if len(mtx.staged) > 0 {
		const query = `
			INSERT INTO positions (market_id, user_id, amount, choice, claimed, payout, claimed_at)
			VALUES ($1, $2, $3::text::numeric, $4, $5, $6::text::numeric, $7)
			ON CONFLICT (market_id, user_id) DO UPDATE SET
				amount = EXCLUDED.amount,
				choice = EXCLUDED.choice,
				claimed = EXCLUDED.claimed,
				payout = EXCLUDED.payout,
				claimed_at = EXCLUDED.claimed_at`
		batch := &pgx.Batch{}
		for _, p := range mtx.staged {
			batch.Queue(query, int64(id), string(p.User), p.Amount.String(), p.Choice,
				p.Claimed, p.Payout.String(), p.ClaimedAt)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: upsert positions for market %d: %w", id, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit market %d: %w", id, err)
	}
	return nil
}

// GetMarket returns market id.
func (s *LedgerStore) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	m, err := scanMarket(s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, fmt.Errorf("postgres: market %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market %d: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns every market ordered by id.
func (s *LedgerStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+marketColumns+` FROM markets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list markets: %w", err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan market: %w", err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list markets rows: %w", err)
	}
	return markets, nil
}

// GetPosition returns user's position on market id.
func (s *LedgerStore) GetPosition(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Position, error) {
	p, err := scanPosition(s.pool.QueryRow(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 AND user_id = $2`,
		int64(id), string(user)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, fmt.Errorf("postgres: position %d/%s: %w", id, user, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("postgres: get position %d/%s: %w", id, user, err)
	}
	return p, nil
}

// ListPositions returns the positions on market id ordered by user.
func (s *LedgerStore) ListPositions(ctx context.Context, id domain.MarketID) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 ORDER BY user_id`, int64(id))
	if err != nil {
		return nil, fmt.Errorf("postgres: list positions %d: %w", id, err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list positions rows: %w", err)
	}
	return positions, nil
}

type marketTx struct {
	ctx    context.Context
	tx     pgx.Tx
	market domain.Market
	dirty  bool
	staged map[domain.Identity]domain.Position
}

func (t *marketTx) Market() domain.Market { return t.market }

func (t *marketTx) SetMarket(m domain.Market) {
	m.ID = t.market.ID
	t.market = m
	t.dirty = true
}

func (t *marketTx) Position(user domain.Identity) (domain.Position, bool, error) {
	if p, ok := t.staged[user]; ok {
		return p, true, nil
	}
	p, err := scanPosition(t.tx.QueryRow(t.ctx,
		`SELECT `+positionColumns+` FROM positions WHERE market_id = $1 AND user_id = $2 FOR UPDATE`,
		int64(t.market.ID), string(user)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("postgres: read position %d/%s: %w", t.market.ID, user, err)
	}
	return p, true, nil
}

func (t *marketTx) SetPosition(p domain.Position) {
	p.MarketID = t.market.ID
	t.staged[p.User] = p
}

func scanMarket(row pgx.Row) (domain.Market, error) {
	var (
		m               domain.Market
		id              int64
		creator         string
		resolvedAt      *time.Time
		yesPool, noPool string
	)
	err := row.Scan(&id, &m.Question, &m.EndTime, &creator, &m.CreatedAt,
		&m.Resolved, &m.Outcome, &resolvedAt, &yesPool, &noPool)
	if err != nil {
		return domain.Market{}, err
	}
	m.ID = domain.MarketID(id)
	m.Creator = domain.Identity(creator)
	m.EndTime = m.EndTime.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	if resolvedAt != nil {
		t := resolvedAt.UTC()
		m.ResolvedAt = &t
	}
	if m.YesPool, err = domain.ParseAmount(yesPool); err != nil {
		return domain.Market{}, err
	}
	if m.NoPool, err = domain.ParseAmount(noPool); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

func scanPosition(row pgx.Row) (domain.Position, error) {
	var (
		p              domain.Position
		marketID       int64
		user           string
		amount, payout string
		claimedAt      *time.Time
	)
	if err := row.Scan(&marketID, &user, &amount, &p.Choice, &p.Claimed, &payout, &claimedAt); err != nil {
		return domain.Position{}, err
	}
	p.MarketID = domain.MarketID(marketID)
	p.User = domain.Identity(user)
	if claimedAt != nil {
		t := claimedAt.UTC()
		p.ClaimedAt = &t
	}
	var err error
	if p.Amount, err = domain.ParseAmount(amount); err != nil {
		return domain.Position{}, err
	}
	if p.Payout, err = domain.ParseAmount(payout); err != nil {
		return domain.Position{}, err
	}
	return p, nil
}
