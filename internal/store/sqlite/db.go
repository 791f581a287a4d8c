// Package sqlite implements the ledger and audit log on an embedded SQLite
// database through gorm, for single-node deployments.
package sqlite

import (
	"fmt"
	"time"

	sqlitedriver "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/predictbase/marketd/internal/domain"
)

type marketRow struct {
	ID         uint64        `gorm:"primaryKey;autoIncrement"`
	Question   string        `gorm:"not null"`
	EndTime    time.Time     `gorm:"not null;index"`
	Creator    string        `gorm:"not null"`
	CreatedAt  time.Time     `gorm:"not null"`
	Resolved   bool          `gorm:"not null;default:false"`
	Outcome    bool          `gorm:"not null;default:false"`
	ResolvedAt *time.Time
	YesPool    domain.Amount `gorm:"type:text;not null"`
	NoPool     domain.Amount `gorm:"type:text;not null"`
}

func (marketRow) TableName() string { return "markets" }

func (r marketRow) toDomain() domain.Market {
	m := domain.Market{
		ID:        domain.MarketID(r.ID),
		Question:  r.Question,
		EndTime:   r.EndTime.UTC(),
		Creator:   domain.Identity(r.Creator),
		CreatedAt: r.CreatedAt.UTC(),
		Resolved:  r.Resolved,
		Outcome:   r.Outcome,
		YesPool:   r.YesPool,
		NoPool:    r.NoPool,
	}
	if r.ResolvedAt != nil {
		t := r.ResolvedAt.UTC()
		m.ResolvedAt = &t
	}
	return m
}

type positionRow struct {
	MarketID  uint64        `gorm:"primaryKey;autoIncrement:false"`
	UserID    string        `gorm:"primaryKey"`
	Amount    domain.Amount `gorm:"type:text;not null"`
	Choice    bool          `gorm:"not null"`
	Claimed   bool          `gorm:"not null;default:false"`
	Payout    domain.Amount `gorm:"type:text;not null"`
	ClaimedAt *time.Time
}

func (positionRow) TableName() string { return "positions" }

func newPositionRow(p domain.Position) positionRow {
	return positionRow{
		MarketID:  uint64(p.MarketID),
		UserID:    string(p.User),
		Amount:    p.Amount,
		Choice:    p.Choice,
		Claimed:   p.Claimed,
		Payout:    p.Payout,
		ClaimedAt: p.ClaimedAt,
	}
}

func (r positionRow) toDomain() domain.Position {
	p := domain.Position{
		MarketID: domain.MarketID(r.MarketID),
		User:     domain.Identity(r.UserID),
		Amount:   r.Amount,
		Choice:   r.Choice,
		Claimed:  r.Claimed,
		Payout:   r.Payout,
	}
	if r.ClaimedAt != nil {
		t := r.ClaimedAt.UTC()
		p.ClaimedAt = &t
	}
	return p
}

type auditRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	Event     string    `gorm:"not null;index"`
	Detail    string    `gorm:"type:text;not null"`
	CreatedAt time.Time `gorm:"not null;index"`
}

func (auditRow) TableName() string { return "audit_log" }

// Open opens (creating if needed) the database at path and migrates the
// schema. Use ":memory:" for a throwaway database.
//
// SQLite allows one writer at a time, so the pool is limited to a single
// connection and gorm transactions serialise naturally.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlitedriver.Open(path), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Error),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite: underlying db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&marketRow{}, &positionRow{}, &auditRow{}); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: migrate: %w", err)
	}
	return db, nil
}

// Close releases the database handle.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
