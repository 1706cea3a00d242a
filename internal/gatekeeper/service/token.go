package service

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

// TokenService issues and validates short-lived access tokens.
type TokenService struct {
	Signer    jwtx.Signer
	Verifier  jwtx.Verifier
	Clock     clock.Clock
	Issuer    string
	AccessTTL time.Duration

	// CookieName is the transport cookie checked before the Authorization
	// header. Defaults to httpx.AccessCookieName.
	CookieName string
}

// NewTokenService wires an HS256 signer and verifier over key. A missing or
// short key is jwtx.ErrSigning.
func NewTokenService(key []byte, issuer string, ttl time.Duration, c clock.Clock) (*TokenService, error) {
	signer, err := jwtx.NewSignerHS256(key)
	if err != nil {
		return nil, err
	}
	c = clock.OrReal(c)
	verifier, err := jwtx.NewVerifierHS256(key, issuer, c)
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = jwtx.DefaultAccessTokenTTL
	}
	return &TokenService{
		Signer:    signer,
		Verifier:  verifier,
		Clock:     c,
		Issuer:    issuer,
		AccessTTL: ttl,
	}, nil
}

// Generate signs {sub, roles, iat: now, exp: now+AccessTTL}.
func (s *TokenService) Generate(subject string, roles []string) (string, error) {
	if s.Signer == nil {
		return "", jwtx.ErrSigning
	}
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", jwtx.ErrInvalidClaim)
	}

	claims := jwtx.NewAccessClaims(subject, normalizeRoles(roles), s.Issuer, s.AccessTTL, clock.OrReal(s.Clock).Now())
	return s.Signer.Sign(claims)
}

// Validate reports the subject and roles of a live token. Any failure,
// including malformed input, is ok=false.
func (s *TokenService) Validate(token string) (subject string, roles []string, ok bool) {
	claims, err := s.Verify(token)
	if err != nil {
		return "", nil, false
	}
	return claims.Subject, claims.Roles, true
}

// Verify is Validate with the failure reason.
func (s *TokenService) Verify(token string) (jwtx.Claims, error) {
	if s.Verifier == nil {
		return jwtx.Claims{}, jwtx.ErrSigning
	}
	return s.Verifier.Verify(token)
}

// ExtractFromTransport pulls the bearer token from the access cookie, then
// from an "Authorization: Bearer" header.
func (s *TokenService) ExtractFromTransport(r *http.Request) (string, bool) {
	name := s.CookieName
	if name == "" {
		name = httpx.AccessCookieName
	}
	return ExtractBearer(r, name)
}

// ExtractBearer is the carrier lookup behind ExtractFromTransport.
func ExtractBearer(r *http.Request, cookieName string) (string, bool) {
	if c, err := r.Cookie(cookieName); err == nil {
		if v := strings.TrimSpace(c.Value); v != "" {
			return v, true
		}
	}

	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// normalizeRoles treats roles as a set.
func normalizeRoles(roles []string) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r = strings.TrimSpace(r); r != "" {
			out = append(out, r)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
