package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/predictbase/marketd/internal/domain"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidInput, http.StatusBadRequest},
		{domain.ErrUnauthorized, http.StatusForbidden},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrTooEarly, http.StatusConflict},
		{domain.ErrMarketClosed, http.StatusConflict},
		{domain.ErrAlreadyResolved, http.StatusConflict},
		{domain.ErrNotResolved, http.StatusConflict},
		{domain.ErrAlreadyClaimed, http.StatusConflict},
		{domain.ErrNothingToClaim, http.StatusUnprocessableEntity},
		{domain.ErrLockHeld, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		wrapped := fmt.Errorf("engine: op 1: %w", tt.err)
		if got := statusFor(wrapped); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestParseChoice(t *testing.T) {
	for in, want := range map[string]bool{"yes": true, "YES": true, " No ": false, "no": false} {
		got, ok := parseChoice(in)
		if !ok || got != want {
			t.Errorf("parseChoice(%q) = %v, %v", in, got, ok)
		}
	}
	if _, ok := parseChoice("maybe"); ok {
		t.Error("parseChoice accepted maybe")
	}
}
