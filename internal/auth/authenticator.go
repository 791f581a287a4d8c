package auth

import (
	"fmt"
	"time"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/crypto"
	"github.com/predictbase/marketd/internal/domain"
)

// Session is the result of a successful login.
type Session struct {
	Identity  domain.Identity `json:"identity"`
	Token     string          `json:"token"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Authenticator verifies signed login messages for one chain.
type Authenticator struct {
	issuer  *Issuer
	chainID int64
	maxSkew time.Duration
	clock   clock.Clock
}

// NewAuthenticator creates an Authenticator.
func NewAuthenticator(issuer *Issuer, chainID int64, maxSkew time.Duration, clk clock.Clock) *Authenticator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Authenticator{issuer: issuer, chainID: chainID, maxSkew: maxSkew, clock: clk}
}

// Login checks that signature is the claimed address's personal_sign over
// message, that the message targets this chain and is fresh, and issues a
// session token.
func (a *Authenticator) Login(message, signature string) (Session, error) {
	msg, err := ParseLoginMessage(message)
	if err != nil {
		return Session{}, err
	}
	if msg.ChainID != a.chainID {
		return Session{}, fmt.Errorf("auth: chain %d, want %d: %w", msg.ChainID, a.chainID, ErrInvalidLogin)
	}
	skew := a.clock.Now().Sub(msg.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > a.maxSkew {
		return Session{}, fmt.Errorf("auth: login timestamp off by %s: %w", skew.Round(time.Second), ErrInvalidLogin)
	}

	signer, err := crypto.RecoverText([]byte(message), signature)
	if err != nil {
		return Session{}, fmt.Errorf("auth: %v: %w", err, ErrInvalidLogin)
	}
	if signer != msg.Address {
		return Session{}, fmt.Errorf("auth: signature by %s, message names %s: %w", signer.Hex(), msg.Address.Hex(), ErrInvalidLogin)
	}

	identity := domain.Identity(msg.Address.Hex())
	token, expires, err := a.issuer.Issue(identity, a.chainID)
	if err != nil {
		return Session{}, err
	}
	return Session{Identity: identity, Token: token, ExpiresAt: expires}, nil
}

// Verify resolves a bearer token to its identity.
func (a *Authenticator) Verify(token string) (domain.Identity, error) {
	identity, claims, err := a.issuer.Verify(token)
	if err != nil {
		return "", err
	}
	if claims.ChainID != a.chainID {
		return "", fmt.Errorf("auth: token for chain %d: %w", claims.ChainID, ErrInvalidToken)
	}
	return identity, nil
}
