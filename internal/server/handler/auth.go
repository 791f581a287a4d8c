package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/predictbase/marketd/internal/auth"
)

// Authenticator verifies a signed login and issues a session.
type Authenticator interface {
	Login(message, signature string) (auth.Session, error)
}

// AuthHandler serves wallet login.
type AuthHandler struct {
	auth   Authenticator
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(a Authenticator, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: a, logger: logger.With(slog.String("handler", "auth"))}
}

type loginRequest struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Login exchanges a personal_sign signature over the login message for a
// bearer token.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := h.auth.Login(req.Message, req.Signature)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidLogin) {
			h.logger.InfoContext(r.Context(), "handler: login rejected", slog.String("error", err.Error()))
			writeError(w, http.StatusUnauthorized, "invalid login")
			return
		}
		writeEngineError(w, r, h.logger, "login", err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// normalizeIdentity checksums hex addresses so path parameters match the
// identities issued at login.
func normalizeIdentity(s string) string {
	if common.IsHexAddress(s) {
		return common.HexToAddress(s).Hex()
	}
	return s
}
