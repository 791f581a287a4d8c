package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/crypto"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func newAuthenticator(t *testing.T, clk clock.Clock) *Authenticator {
	t.Helper()
	issuer, err := NewIssuer(strings.Repeat("s", 32), time.Hour, clk)
	if err != nil {
		t.Fatal(err)
	}
	return NewAuthenticator(issuer, 8453, 5*time.Minute, clk)
}

func signedLogin(t *testing.T, w *crypto.Wallet, chainID int64, at time.Time) (string, string) {
	t.Helper()
	msg := LoginMessage{ChainID: chainID, Address: w.Address(), Timestamp: at}.String()
	sig, err := w.SignText([]byte(msg))
	if err != nil {
		t.Fatal(err)
	}
	return msg, sig
}

func TestLoginMessageRoundTrip(t *testing.T) {
	w, _ := crypto.NewWallet(testKey)
	in := LoginMessage{ChainID: 8453, Address: w.Address(), Timestamp: t0}
	text := in.String()
	want := "marketd login\nchain: 8453\naddress: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266\ntimestamp: 1777626000"
	if text != want {
		t.Fatalf("String() = %q", text)
	}
	out, err := ParseLoginMessage(strings.ReplaceAll(text, "\n", "\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if out.ChainID != in.ChainID || out.Address != in.Address || !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("parsed %+v, want %+v", out, in)
	}
}

func TestParseLoginMessageRejects(t *testing.T) {
	for _, text := range []string{
		"",
		"hello\nchain: 1\naddress: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266\ntimestamp: 1",
		"marketd login\nchain: x\naddress: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266\ntimestamp: 1",
		"marketd login\nchain: 1\naddress: nope\ntimestamp: 1",
		"marketd login\nchain: 1\naddress: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
	} {
		if _, err := ParseLoginMessage(text); !errors.Is(err, ErrInvalidLogin) {
			t.Errorf("ParseLoginMessage(%q) err = %v", text, err)
		}
	}
}

func TestLoginIssuesVerifiableToken(t *testing.T) {
	clk := clock.NewManual(t0)
	a := newAuthenticator(t, clk)
	w, _ := crypto.NewWallet(testKey)

	msg, sig := signedLogin(t, w, 8453, t0.Add(-time.Minute))
	sess, err := a.Login(msg, sig)
	if err != nil {
		t.Fatal(err)
	}
	if sess.Identity.String() != w.Address().Hex() {
		t.Errorf("identity = %s", sess.Identity)
	}
	if !sess.ExpiresAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expires = %v", sess.ExpiresAt)
	}

	id, err := a.Verify(sess.Token)
	if err != nil {
		t.Fatal(err)
	}
	if id != sess.Identity {
		t.Errorf("Verify = %s", id)
	}

	clk.Advance(2 * time.Hour)
	if _, err := a.Verify(sess.Token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token err = %v", err)
	}
}

func TestLoginRejections(t *testing.T) {
	clk := clock.NewManual(t0)
	a := newAuthenticator(t, clk)
	w, _ := crypto.NewWallet(testKey)
	other, _ := crypto.GenerateWallet()

	tests := []struct {
		name string
		msg  func() (string, string)
	}{
		{"stale", func() (string, string) { return signedLogin(t, w, 8453, t0.Add(-10*time.Minute)) }},
		{"future", func() (string, string) { return signedLogin(t, w, 8453, t0.Add(10*time.Minute)) }},
		{"wrong chain", func() (string, string) { return signedLogin(t, w, 1, t0) }},
		{"signed by someone else", func() (string, string) {
			msg := LoginMessage{ChainID: 8453, Address: w.Address(), Timestamp: t0}.String()
			sig, _ := other.SignText([]byte(msg))
			return msg, sig
		}},
		{"garbage signature", func() (string, string) {
			msg, _ := signedLogin(t, w, 8453, t0)
			return msg, "0xdeadbeef"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, sig := tt.msg()
			if _, err := a.Login(msg, sig); !errors.Is(err, ErrInvalidLogin) {
				t.Fatalf("Login err = %v, want ErrInvalidLogin", err)
			}
		})
	}
}

func TestVerifyRejectsForeignTokens(t *testing.T) {
	clk := clock.NewManual(t0)
	a := newAuthenticator(t, clk)

	otherIssuer, _ := NewIssuer(strings.Repeat("x", 32), time.Hour, clk)
	forged, _, err := otherIssuer.Issue("0xabc", 8453)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(forged); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign secret err = %v", err)
	}

	otherChain, _, _ := a.issuer.Issue("0xabc", 1)
	if _, err := a.Verify(otherChain); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("other chain err = %v", err)
	}
	if _, err := a.Verify("not.a.jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage err = %v", err)
	}
	if _, err := NewIssuer("", time.Hour, nil); err == nil {
		t.Error("empty secret accepted")
	}
}
