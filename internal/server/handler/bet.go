package handler

import (
	"log/slog"
	"net/http"

	"github.com/predictbase/marketd/internal/domain"
	"github.com/predictbase/marketd/internal/server/middleware"
)

// BetHandler serves staking, claiming and position endpoints.
type BetHandler struct {
	engine Engine
	units  Units
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(engine Engine, units Units, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		engine: engine,
		units:  units,
		logger: logger.With(slog.String("handler", "bets")),
	}
}

type placeBetRequest struct {
	Choice string         `json:"choice"`
	Amount *domain.Amount `json:"amount"`
	// AmountDisplay is a whole-coin decimal such as "0.5".
	AmountDisplay string `json:"amount_display"`
}

// PlaceBet stakes on one side of a market for the caller.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}

	var req placeBetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	choice, ok := parseChoice(req.Choice)
	if !ok {
		writeError(w, http.StatusBadRequest, `choice must be "yes" or "no"`)
		return
	}
	var base domain.Amount
	if req.Amount != nil {
		base = *req.Amount
	}
	amount, err := h.units.amount(base, req.Amount != nil, req.AmountDisplay)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}

	if err := h.engine.PlaceBet(r.Context(), id, caller, choice, amount); err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	pos, err := h.engine.UserBet(r.Context(), id, caller)
	if err != nil {
		writeEngineError(w, r, h.logger, "place bet", err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.position(pos))
}

type claimResponse struct {
	MarketID domain.MarketID `json:"market_id"`
	User     domain.Identity `json:"user"`
	Payout   amountView      `json:"payout"`
}

// ClaimWinnings pays out the caller's position in a resolved market.
// POST /api/markets/{id}/claim
func (h *BetHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	caller, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := marketIDParam(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "claim winnings", err)
		return
	}

	payout, err := h.engine.ClaimWinnings(r.Context(), id, caller)
	if err != nil {
		writeEngineError(w, r, h.logger, "claim winnings", err)
		return
	}
	writeJSON(w, http.StatusOK, claimResponse{MarketID: id, User: caller, Payout: h.units.view(payout)})
}

// GetPosition returns a user's position; users without a bet get an empty
// position rather than 404.
// GET /api/markets/{id}/positions/{user}
func (h *BetHandler) GetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeEngineError(w, r, h.logger, "get position", err)
		return
	}
	user := domain.Identity(normalizeIdentity(r.PathValue("user")))
	if user.IsZero() {
		writeError(w, http.StatusBadRequest, "missing user")
		return
	}
	pos, err := h.engine.UserBet(r.Context(), id, user)
	if err != nil {
		writeEngineError(w, r, h.logger, "get position", err)
		return
	}
	writeJSON(w, http.StatusOK, h.units.position(pos))
}
