package local

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors.
var (
	ErrTokenInvalid = errors.New("local: invalid access token")
	ErrTokenExpired = errors.New("local: access token past refresh window")
)

const tokenIssuer = "learnexa"

// Tokens issues and checks HS256 access tokens.
type Tokens struct {
	secret        []byte
	ttl           time.Duration
	refreshWindow time.Duration
	now           func() time.Time
}

// NewTokens constructs a token issuer. Expired tokens younger than
// refreshWindow are still accepted so the caller can refresh them.
func NewTokens(secret string, ttl, refreshWindow time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl, refreshWindow: refreshWindow, now: time.Now}
}

// Issue signs a token for userID.
func (t *Tokens) Issue(userID string) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("local: sign token: %w", err)
	}
	return signed, expires, nil
}

// Claims is the verified content of a token.
type Claims struct {
	UserID    string
	ExpiresAt time.Time
	// Stale is set for an expired token still inside the refresh window.
	Stale bool
}

// Parse verifies raw. Expiry is checked here rather than by the jwt
// parser so stale tokens can be told apart from dead ones.
func (t *Tokens) Parse(raw string) (Claims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(tok *jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || claims.Subject == "" || claims.ExpiresAt == nil || claims.Issuer != tokenIssuer {
		return Claims{}, ErrTokenInvalid
	}
	out := Claims{UserID: claims.Subject, ExpiresAt: claims.ExpiresAt.Time}
	now := t.now()
	if !now.Before(out.ExpiresAt) {
		if !now.Before(out.ExpiresAt.Add(t.refreshWindow)) {
			return Claims{}, ErrTokenExpired
		}
		out.Stale = true
	}
	return out, nil
}
