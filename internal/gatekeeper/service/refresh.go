package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/jwtx"
)

var (
	ErrRefreshUnknown = errors.New("refresh_unknown")
	ErrRefreshExpired = errors.New("refresh_expired")
)

// RefreshService maintains one rotating refresh credential per subject.
type RefreshService struct {
	Store store.RefreshCredentials
	Clock clock.Clock
	TTL   time.Duration
}

// Lifetime is the TTL applied to issued credentials.
func (s *RefreshService) Lifetime() time.Duration {
	if s.TTL <= 0 {
		return jwtx.DefaultRefreshTokenTTL
	}
	return s.TTL
}

func newSecret() (secret, hash string, err error) {
	secret, err = cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", "", err
	}
	return secret, cryptox.FingerprintToken(secret), nil
}

// Issue replaces whatever credential subject holds with a fresh one. The
// returned value carries the plaintext secret; only its fingerprint is stored.
func (s *RefreshService) Issue(ctx context.Context, subject string) (domain.RefreshCredential, error) {
	secret, hash, err := newSecret()
	if err != nil {
		return domain.RefreshCredential{}, err
	}

	now := clock.OrReal(s.Clock).Now()
	stored, err := s.Store.UpsertRefreshCredential(ctx, domain.RefreshCredential{
		ID:         uuid.NewString(),
		Subject:    subject,
		SecretHash: hash,
		ExpiresAt:  now.Add(s.Lifetime()),
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return domain.RefreshCredential{}, err
	}
	stored.Secret = secret
	return stored, nil
}

// Rotate exchanges a presented secret for a new one. The presented secret is
// single-use: a second attempt with it is ErrRefreshUnknown. An expired
// credential is deleted and reported once as ErrRefreshExpired.
func (s *RefreshService) Rotate(ctx context.Context, presented string) (domain.RefreshCredential, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return domain.RefreshCredential{}, ErrRefreshUnknown
	}

	secret, hash, err := newSecret()
	if err != nil {
		return domain.RefreshCredential{}, err
	}

	now := clock.OrReal(s.Clock).Now()
	rotated, err := s.Store.RotateRefreshCredential(ctx, cryptox.FingerprintToken(presented), hash, now.Add(s.Lifetime()), now)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return domain.RefreshCredential{}, ErrRefreshUnknown
	case errors.Is(err, store.ErrExpired):
		return domain.RefreshCredential{}, ErrRefreshExpired
	case err != nil:
		return domain.RefreshCredential{}, err
	}
	rotated.Secret = secret
	return rotated, nil
}

// Revoke deletes the subject's credential. Revoking nothing is not an error.
func (s *RefreshService) Revoke(ctx context.Context, subject string) error {
	return s.Store.DeleteRefreshCredentialBySubject(ctx, subject)
}
