package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default token TTLs. Services override them through configuration.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour
)

// Claims are the access-token claims: who the token speaks for and what roles
// it carries.
type Claims struct {
	jwt.RegisteredClaims

	Roles []string `json:"roles"`
}

// NewAccessClaims builds the claim set {sub, roles, iat, exp = iat + ttl}.
func NewAccessClaims(subject string, roles []string, issuer string, ttl time.Duration, now time.Time) Claims {
	if roles == nil {
		roles = []string{}
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Roles: roles,
	}
}

// ValidateIssuer checks iss when an issuer is expected.
func (c *Claims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil
	}
	if c.Issuer != expected {
		return ErrIssuer
	}
	return nil
}

// ValidateAt enforces a subject and an expiry; a token is live only while
// now is strictly before exp.
func (c *Claims) ValidateAt(now time.Time) error {
	if c.Subject == "" {
		return ErrInvalidClaim
	}
	if c.ExpiresAt == nil {
		return ErrInvalidClaim
	}
	if !now.Before(c.ExpiresAt.Time) {
		return ErrExpired
	}
	return nil
}
