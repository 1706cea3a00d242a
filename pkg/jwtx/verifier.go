package jwtx

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"

	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/golang-jwt/jwt/v5"
)

// Verifier validates a JWT and returns its claims.
type Verifier interface {
	Verify(token string) (Claims, error)
}

var (
	ErrSigning      = errors.New("jwtx: signing key missing or invalid")
	ErrMalformed    = errors.New("jwtx: malformed token")
	ErrInvalidSig   = errors.New("jwtx: invalid signature")
	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// HS256Verifier checks HS256 tokens against the same key the signer uses.
type HS256Verifier struct {
	key    []byte
	issuer string
	clock  clock.Clock
	parser *jwt.Parser
}

// NewVerifierHS256 builds a verifier. Expiry is judged against c, not the
// library's wall clock.
func NewVerifierHS256(key []byte, issuer string, c clock.Clock) (*HS256Verifier, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return &HS256Verifier{
		key:    append([]byte(nil), key...),
		issuer: issuer,
		clock:  clock.OrReal(c),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}, nil
}

// Verify always spends one HMAC computation whether the token is malformed,
// forged or expired, so the response time does not reveal which check failed.
func (v *HS256Verifier) Verify(raw string) (Claims, error) {
	claims := Claims{}
	_, err := v.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return Claims{}, ErrInvalidSig
		}
		v.burn(raw)
		return Claims{}, ErrMalformed
	}

	if err := claims.ValidateIssuer(v.issuer); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateAt(v.clock.Now()); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (v *HS256Verifier) burn(raw string) {
	m := hmac.New(sha256.New, v.key)
	m.Write([]byte(raw))
	_ = m.Sum(nil)
}
