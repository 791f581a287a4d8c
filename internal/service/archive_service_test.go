package service

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	puts    int
}

func (b *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.objects[path] = raw
	b.puts++
	return nil
}

func (b *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return b.Put(ctx, path, data, "")
}

func (b *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	raw, ok := b.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *memBlobs) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (b *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := b.objects[path]
	return ok, nil
}

type settlementFixture struct {
	markets   []domain.Market
	positions map[domain.MarketID][]domain.Position
}

func (f settlementFixture) AllMarkets(context.Context) ([]domain.Market, error) { return f.markets, nil }

func (f settlementFixture) Positions(_ context.Context, id domain.MarketID) ([]domain.Position, error) {
	return f.positions[id], nil
}

func TestArchiveResolved(t *testing.T) {
	resolvedAt := time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	clk := clock.NewManual(resolvedAt.Add(30 * time.Minute))
	fixture := settlementFixture{
		markets: []domain.Market{
			{ID: 1, Resolved: true, Outcome: true, ResolvedAt: &resolvedAt, YesPool: domain.NewAmount(100), NoPool: domain.NewAmount(300)},
			{ID: 2, EndTime: resolvedAt},
		},
		positions: map[domain.MarketID][]domain.Position{
			1: {
				{MarketID: 1, User: "no", Amount: domain.NewAmount(300)},
				{MarketID: 1, User: "yes", Amount: domain.NewAmount(100), Choice: true},
			},
		},
	}
	blobs := &memBlobs{objects: map[string][]byte{}}
	pub := &capturePublisher{}
	svc := NewArchiveService(fixture, blobs, blobs, pub, clk,
		ArchiveConfig{ChainID: 8453, MinAge: time.Hour}, discardLogger())
	ctx := context.Background()

	// Too recent.
	if n, err := svc.ArchiveResolved(ctx); err != nil || n != 0 {
		t.Fatalf("early pass = %d, %v", n, err)
	}

	clk.Advance(time.Hour)
	n, err := svc.ArchiveResolved(ctx)
	if err != nil || n != 1 {
		t.Fatalf("pass = %d, %v", n, err)
	}

	path := "settlements/8453/2026/02/market-1.json"
	raw, ok := blobs.objects[path]
	if !ok {
		t.Fatalf("no object at %s; have %v", path, blobs.objects)
	}
	var doc struct {
		TotalPool string `json:"total_pool"`
		Positions []struct {
			User     string `json:"user"`
			Entitled string `json:"entitled"`
		} `json:"positions"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc.TotalPool != "400" || len(doc.Positions) != 2 {
		t.Fatalf("doc = %+v", doc)
	}
	for _, p := range doc.Positions {
		want := map[string]string{"yes": "400", "no": "0"}[p.User]
		if p.Entitled != want {
			t.Errorf("%s entitled %s, want %s", p.User, p.Entitled, want)
		}
	}

	// Already exported: no second upload.
	if n, _ := svc.ArchiveResolved(ctx); n != 0 || blobs.puts != 1 {
		t.Errorf("repeat pass wrote %d (puts=%d)", n, blobs.puts)
	}
	if len(pub.events) != 1 || pub.events[0].Type != domain.EventMarketArchived {
		t.Errorf("events = %+v", pub.events)
	}
}

func TestArchivePath(t *testing.T) {
	at := time.Date(2027, 11, 3, 0, 0, 0, 0, time.UTC)
	got := ArchivePath(84532, domain.Market{ID: 12, ResolvedAt: &at})
	if got != "settlements/84532/2027/11/market-12.json" {
		t.Errorf("ArchivePath = %s", got)
	}
}
