package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/predictbase/marketd/internal/config"
	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/service"
)

func TestWireMemoryLedger(t *testing.T) {
	cfg := config.Defaults()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()

	if deps.Ledger == nil || deps.Audit == nil {
		t.Fatal("ledger and audit stores must be wired")
	}
	if _, ok := deps.Bus.(*service.LocalBus); !ok {
		t.Errorf("bus = %T, want *service.LocalBus", deps.Bus)
	}
	if deps.Cache != nil || deps.Locks != nil || deps.Limiter != nil {
		t.Error("redis-backed dependencies should be nil when redis is disabled")
	}
	if deps.BlobWriter != nil || deps.Notifier != nil {
		t.Error("blob writer and notifier should be nil by default")
	}
	if len(deps.Checks) != 0 {
		t.Errorf("checks = %v, want none", deps.Checks)
	}
}

func TestWireNotifier(t *testing.T) {
	cfg := config.Defaults()
	cfg.Notify.DiscordWebhookURL = "https://discord.example/webhook"
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	deps, cleanup, err := Wire(context.Background(), &cfg, logger)
	if err != nil {
		t.Fatalf("Wire: %v", err)
	}
	defer cleanup()
	if deps.Notifier == nil {
		t.Fatal("notifier should be wired when a discord webhook is configured")
	}
}

func TestAdminIdentities(t *testing.T) {
	got := adminIdentities([]string{
		" 0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266 ",
		"",
		"ops-team",
	})
	want := []domain.Identity{"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", "ops-team"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
