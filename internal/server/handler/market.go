package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/server/middleware"
)

// Engine defines the settlement operations the handlers require. It is
// declared locally so the handler package does not depend on the concrete
// engine implementation.
type Engine interface {
	CreateMarket(ctx context.Context, question string, endTime time.Time, creator domain.Identity) (domain.MarketID, error)
	ResolveMarket(ctx context.Context, id domain.MarketID, outcome bool, caller domain.Identity) error
	PlaceBet(ctx context.Context, id domain.MarketID, user domain.Identity, choice bool, amount domain.Amount) error
	ClaimWinnings(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Amount, error)
	ActiveMarkets(ctx context.Context) ([]domain.Market, error)
	AllMarkets(ctx context.Context) ([]domain.Market, error)
	Market(ctx context.Context, id domain.MarketID) (domain.Market, error)
	UserBet(ctx context.Context, id domain.MarketID, user domain.Identity) (domain.Position, error)
	Now() time.Time
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	engine Engine
	units  Units
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(engine Engine, units Units, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		engine: engine,
		units:  units,
		logger: logger.With(slog.String("handler", "markets")),
	}
}

type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Total   int          `json:"total"`
	State   string       `json:"state"`
}

// ListMarkets returns open markets, or every market with state=all.
// GET /api/markets?state=active|all
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		state = "active"
	}

	var (
		markets []domain.Market
		err     error
	)
	switch state {
	case "active":
		markets, err = h.engine.ActiveMarkets(r.Context())
	case "all":
		markets, err = h.engine.AllMarkets(r.Context())
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown state %q (valid: active, all)", state))
		return
	}
	if err != nil {
		writeEngineError(w, r, h.logger, "list markets", err)
		return
	}

	now := h.engine.Now()
	views := make([]marketView, 0, len(markets))
	for _, m := range markets {
		views = append(views, h.units.market(m, now))
	}
	writeJSON(w, http.StatusOK, listMarketsResponse{Markets: views, Total: len(views), State: state})
}

// GetMarket returns a single market.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "get market", err)
		return
	}
	m, err := h.engine.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "get market", err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.market(m, h.engine.Now()))
}

type createMarketRequest struct {
	Question string     `json:"question"`
	EndTime  *time.Time `json:"end_time"`
	// Duration is relative to now, e.g. "1h"; used when EndTime is unset.
	Duration string `json:"duration"`
}

// CreateMarket opens a new market owned by the caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createMarketRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEngineError(w, r, h.logger, "create market", err)
		return
	}

	var end time.Time
	switch {
	case req.EndTime != nil && req.Duration != "":
		writeError(w, http.StatusBadRequest, "set either end_time or duration, not both")
		return
	case req.EndTime != nil:
		end = *req.EndTime
	case req.Duration != "":
		d, err := time.ParseDuration(strings.TrimSpace(req.Duration))
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid duration %q", req.Duration))
			return
		}
		end = h.engine.Now().Add(d)
	default:
		writeError(w, http.StatusBadRequest, "end_time or duration is required")
		return
	}

	id, err := h.engine.CreateMarket(r.Context(), req.Question, end, caller)
	if err != nil {
		writeEngineError(w, r, h.logger, "create market", err)
		return
	}
	m, err := h.engine.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "create market", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.units.market(m, h.engine.Now()))
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// ResolveMarket records the outcome of a closed market.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}

	var req resolveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	outcome, ok := parseChoice(req.Outcome)
	if !ok {
		writeError(w, http.StatusBadRequest, `outcome must be "yes" or "no"`)
		return
	}

	if err := h.engine.ResolveMarket(r.Context(), id, outcome, caller); err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	m, err := h.engine.Market(r.Context(), id)
	if err != nil {
		writeEngineError(w, r, h.logger, "resolve market", err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.market(m, h.engine.Now()))
}
