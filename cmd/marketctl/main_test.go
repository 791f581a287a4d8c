package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/predictbase/marketd/internal/auth"
	"github.com/predictbase/marketd/internal/crypto"
)

const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestLoginSignsChallenge(t *testing.T) {
	var gotMessage, gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/health":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded","chain_id":84532}`))
		case "/api/auth/login":
			var req map[string]string
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				t.Errorf("decode: %v", err)
			}
			gotMessage, gotSig = req["message"], req["signature"]
			_, _ = w.Write([]byte(`{"identity":"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266","token":"tok","expires_at":"2026-01-01T00:00:00Z"}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	var out bytes.Buffer
	if err := run(context.Background(), []string{"login", "-api", srv.URL, "-key", devKey}, &out); err != nil {
		t.Fatalf("login: %v", err)
	}

	msg, err := auth.ParseLoginMessage(gotMessage)
	if err != nil {
		t.Fatalf("ParseLoginMessage: %v", err)
	}
	if msg.ChainID != 84532 {
		t.Errorf("chain id = %d, want 84532", msg.ChainID)
	}
	signer, err := crypto.RecoverText([]byte(gotMessage), gotSig)
	if err != nil {
		t.Fatalf("RecoverText: %v", err)
	}
	if signer != msg.Address {
		t.Errorf("signer = %s, message address = %s", signer.Hex(), msg.Address.Hex())
	}
	if !strings.Contains(out.String(), `"token": "tok"`) {
		t.Errorf("output = %s", out.String())
	}
}

func TestBetSendsBaseUnits(t *testing.T) {
	var body map[string]any
	var authz string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/markets/7/bets" {
			http.NotFound(w, r)
			return
		}
		authz = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	args := []string{"bet", "-api", srv.URL, "-token", "abc", "-market", "7", "-choice", "YES", "-amount", "0.25"}
	if err := run(context.Background(), args, &bytes.Buffer{}); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if authz != "Bearer abc" {
		t.Errorf("Authorization = %q", authz)
	}
	if body["amount"] != "250000000000000000" || body["choice"] != "yes" {
		t.Errorf("body = %v", body)
	}
}

func TestAPIErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"error":"market already resolved"}`))
	}))
	defer srv.Close()

	err := run(context.Background(), []string{"resolve", "-api", srv.URL, "-market", "1", "-outcome", "yes"}, &bytes.Buffer{})
	var apiErr *apiError
	if err == nil || !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *apiError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "market already resolved" {
		t.Errorf("apiErr = %+v", apiErr)
	}
}

func TestUnknownCommand(t *testing.T) {
	if err := run(context.Background(), []string{"bogus"}, &bytes.Buffer{}); err == nil {
		t.Fatal("expected an error for an unknown command")
	}
}
