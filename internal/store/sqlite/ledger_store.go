package sqlite

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/predictbase/marketd/internal/domain"
)

// LedgerStore implements domain.LedgerStore on SQLite.
type LedgerStore struct {
	db *gorm.DB
}

// NewLedgerStore wraps a database opened with Open.
func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

var _ domain.LedgerStore = (*LedgerStore)(nil)

// CreateMarket inserts m and returns it with its assigned id.
func (s *LedgerStore) CreateMarket(ctx context.Context, m domain.Market) (domain.Market, error) {
	row := marketRow{
		Question:  m.Question,
		EndTime:   m.EndTime,
		Creator:   string(m.Creator),
		CreatedAt: m.CreatedAt,
		YesPool:   m.YesPool,
		NoPool:    m.NoPool,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: create market: %w", err)
	}
	return row.toDomain(), nil
}

// Update runs fn inside a gorm transaction scoped to market id.
func (s *LedgerStore) Update(ctx context.Context, id domain.MarketID, fn func(tx domain.MarketTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		var row marketRow
		err := gtx.First(&row, uint64(id)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("sqlite: market %d: %w", id, domain.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("sqlite: load market %d: %w", id, err)
		}

		mtx := &marketTx{db: gtx, market: row.toDomain(), staged: make(map[domain.Identity]domain.Position)}
		if err := fn(mtx); err != nil {
			return err
		}

		if mtx.dirty {
			m := mtx.market
			err := gtx.Model(&marketRow{}).Where("id = ?", uint64(id)).Updates(map[string]any{
				"resolved":    m.Resolved,
				"outcome":     m.Outcome,
				"resolved_at": m.ResolvedAt,
				"yes_pool":    m.YesPool,
				"no_pool":     m.NoPool,
			}).Error
			if err != nil {
				return fmt.Errorf("sqlite: update market %d: %w", id, err)
			}
		}

		if len(mtx.staged) > 0 {
			rows := make([]positionRow, 0, len(mtx.staged))
			for _, p := range mtx.staged {
				rows = append(rows, newPositionRow(p))
			}
			err := gtx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "market_id"}, {Name: "user_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"amount", "choice", "claimed", "payout", "claimed_at"}),
			}).Create(&rows).Error
			if err != nil {
				return fmt.Errorf("sqlite: upsert positions for market %d: %w", id, err)
			}
		}
		return nil
	})
}

// GetMarket returns market id.
func (s *LedgerStore) GetMarket(ctx context.Context, id domain.MarketID) (domain.Market, error) {
	var row marketRow
	err := s.db.WithContext(ctx).First(&row, uint64(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Market{}, fmt.Errorf("sqlite: market %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("sqlite: get market %d: %w", id, err)
	}
	return row.toDomain(), nil
}

// ListMarkets returns every market ordered by id.
func (s *LedgerStore) ListMarkets(ctx context.Context) ([]domain.Market, error) {
	var rows []marketRow
	if err := s.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("sqlite: list markets: %w", err)
	}
	out := make([]domain.Market, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// GetPosition returns user's position on market id.
func (s *LedgerStore) GetPosition(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Position, error) {
	p, err := findPosition(s.db.WithContext(ctx), id, user)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Position{}, fmt.Errorf("sqlite: position %d/%s: %w", id, user, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Position{}, fmt.Errorf("sqlite: get position %d/%s: %w", id, user, err)
	}
	return p, nil
}

// ListPositions returns the positions on market id ordered by user.
func (s *LedgerStore) ListPositions(ctx context.Context, id domain.MarketID) ([]domain.Position, error) {
	var rows []positionRow
	err := s.db.WithContext(ctx).Where("market_id = ?", uint64(id)).Order("user_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("sqlite: list positions %d: %w", id, err)
	}
	out := make([]domain.Position, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

func findPosition(db *gorm.DB, id domain.MarketID, user domain.Identity) (domain.Position, error) {
	var row positionRow
	err := db.Where("market_id = ? AND user_id = ?", uint64(id), string(user)).Take(&row).Error
	if err != nil {
		return domain.Position{}, err
	}
	return row.toDomain(), nil
}

type marketTx struct {
	db     *gorm.DB
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
	p, err := findPosition(t.db, t.market.ID, user)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Position{}, false, nil
	}
	if err != nil {
		return domain.Position{}, false, fmt.Errorf("sqlite: read position %d/%s: %w", t.market.ID, user, err)
	}
	return p, true, nil
}

func (t *marketTx) SetPosition(p domain.Position) {
	p.MarketID = t.market.ID
	t.staged[p.User] = p
}
