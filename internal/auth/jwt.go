package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/predictbase/marketd/internal/clock"
	"github.com/predictbase/marketd/internal/domain"
)

// ErrInvalidToken is returned when a bearer token fails verification.
var ErrInvalidToken = errors.New("invalid token")

const issuerName = "marketd"

// Claims represents the session token claims. The subject is the caller's
// checksummed address.
type Claims struct {
	ChainID int64 `json:"chain_id"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewIssuer creates an Issuer. secret must not be empty.
func NewIssuer(secret string, ttl time.Duration, clk clock.Clock) (*Issuer, error) {
	if secret == "" {
		return nil, errors.New("auth: JWT secret not configured")
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, clock: clk}, nil
}

// Issue returns a token for identity and its expiry.
func (i *Issuer) Issue(identity domain.Identity, chainID int64) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)
	claims := &Claims{
		ChainID: chainID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   identity.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify checks the token signature, issuer and expiry and returns the
// identity it was issued to.
func (i *Issuer) Verify(token string) (domain.Identity, *Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuerName),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	if err != nil {
		return "", nil, fmt.Errorf("auth: %v: %w", err, ErrInvalidToken)
	}
	if !parsed.Valid {
		return "", nil, fmt.Errorf("auth: token not valid: %w", ErrInvalidToken)
	}
	identity := domain.Identity(claims.Subject)
	if identity.IsZero() {
		return "", nil, fmt.Errorf("auth: token has no subject: %w", ErrInvalidToken)
	}
	return identity, claims, nil
}
