package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/engine"
)

// multipartThreshold is the export size above which uploads are split.
const multipartThreshold = 5 * 1024 * 1024

// SettlementSource reads markets and their positions.
type SettlementSource interface {
	AllMarkets(ctx context.Context) ([]domain.Market, error)
	Positions(ctx context.Context, id domain.MarketID) ([]domain.Position, error)
}

// ArchiveConfig configures the settlement archiver.
type ArchiveConfig struct {
	ChainID  int64
	Interval time.Duration
	// MinAge is how long after resolution a market is exported, leaving
	// time for most claims to land.
	MinAge time.Duration
}

// SettlementExport is the JSON document written per resolved market.
type SettlementExport struct {
	ChainID    int64            `json:"chain_id"`
	Market     domain.Market    `json:"market"`
	TotalPool  domain.Amount    `json:"total_pool"`
	Positions  []SettlementLine `json:"positions"`
	ExportedAt time.Time        `json:"exported_at"`
}

// SettlementLine is one position with the payout it is entitled to.
type SettlementLine struct {
	domain.Position
	Entitled domain.Amount `json:"entitled"`
}

// ArchiveService exports resolved markets to object storage once.
type ArchiveService struct {
	source   SettlementSource
	writer   domain.BlobWriter
	reader   domain.BlobReader
	events   domain.EventPublisher
	clock    clock.Clock
	cfg      ArchiveConfig
	archived map[domain.MarketID]bool
	logger   *slog.Logger
}

// NewArchiveService creates an ArchiveService. events may be nil.
func NewArchiveService(
	source SettlementSource,
	writer domain.BlobWriter,
	reader domain.BlobReader,
	events domain.EventPublisher,
	clk clock.Clock,
	cfg ArchiveConfig,
	logger *slog.Logger,
) *ArchiveService {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &ArchiveService{
		source:   source,
		writer:   writer,
		reader:   reader,
		events:   events,
		clock:    clk,
		cfg:      cfg,
		archived: make(map[domain.MarketID]bool),
		logger:   logger.With(slog.String("component", "archive_service")),
	}
}

// ArchivePath returns the object key for market m's export, partitioned by
// chain and resolution month.
func ArchivePath(chainID int64, m domain.Market) string {
	at := m.EndTime
	if m.ResolvedAt != nil {
		at = *m.ResolvedAt
	}
	return fmt.Sprintf("settlements/%d/%04d/%02d/market-%d.json", chainID, at.Year(), int(at.Month()), m.ID)
}

// Run archives on every tick until ctx ends.
func (s *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.InfoContext(ctx, "archive_service: started", slog.Duration("interval", s.cfg.Interval))
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n, err := s.ArchiveResolved(ctx); err != nil {
				s.logger.WarnContext(ctx, "archive_service: pass failed",
					slog.Int("archived", n),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// ArchiveResolved exports every resolved market old enough that has no
// export yet and returns how many were written.
func (s *ArchiveService) ArchiveResolved(ctx context.Context) (int, error) {
	markets, err := s.source.AllMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("archive_service: list markets: %w", err)
	}
	now := s.clock.Now()

	written := 0
	for _, m := range markets {
		if !m.Resolved || s.archived[m.ID] {
			continue
		}
		if m.ResolvedAt != nil && now.Sub(*m.ResolvedAt) < s.cfg.MinAge {
			continue
		}
		path := ArchivePath(s.cfg.ChainID, m)
		exists, err := s.reader.Exists(ctx, path)
		if err != nil {
			return written, fmt.Errorf("archive_service: check %s: %w", path, err)
		}
		if exists {
			s.archived[m.ID] = true
			continue
		}
		if err := s.export(ctx, m, path, now); err != nil {
			return written, err
		}
		s.archived[m.ID] = true
		written++
	}
	if written > 0 {
		s.logger.InfoContext(ctx, "archive_service: exported settlements", slog.Int("count", written))
	}
	return written, nil
}

func (s *ArchiveService) export(ctx context.Context, m domain.Market, path string, now time.Time) error {
	positions, err := s.source.Positions(ctx, m.ID)
	if err != nil {
		return fmt.Errorf("archive_service: positions %d: %w", m.ID, err)
	}
	total, _ := m.TotalPool()
	doc := SettlementExport{
		ChainID:    s.cfg.ChainID,
		Market:     m,
		TotalPool:  total,
		Positions:  make([]SettlementLine, 0, len(positions)),
		ExportedAt: now,
	}
	for _, p := range positions {
		entitled, err := engine.Payout(m, p)
		if err != nil {
			return fmt.Errorf("archive_service: payout %d/%s: %w", m.ID, p.User, err)
		}
		doc.Positions = append(doc.Positions, SettlementLine{Position: p, Entitled: entitled})
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("archive_service: marshal %d: %w", m.ID, err)
	}
	if len(data) > multipartThreshold {
		err = s.writer.PutMultipart(ctx, path, bytes.NewReader(data), multipartThreshold)
	} else {
		err = s.writer.Put(ctx, path, bytes.NewReader(data), "application/json")
	}
	if err != nil {
		return fmt.Errorf("archive_service: upload %s: %w", path, err)
	}

	if s.events != nil {
		err := s.events.Publish(ctx, domain.Event{
			ID:        uuid.NewString(),
			Type:      domain.EventMarketArchived,
			MarketID:  m.ID,
			Data:      map[string]any{"path": path, "positions": len(positions)},
			Timestamp: now,
		})
		if err != nil {
			s.logger.WarnContext(ctx, "archive_service: publish failed",
				slog.String("market_id", m.ID.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
