package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var (
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserExists         = errors.New("user_exists")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrWeakPassword       = errors.New("weak_password")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrProviderTaken      = errors.New("provider_already_linked")
	ErrInvalidProviderID  = errors.New("invalid_provider_id")
)

// IdentityService is the boundary to user records. The subject handed to
// the token layer is the user's email.
type IdentityService struct {
	Store store.Store
	Clock clock.Clock
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(email)
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(email), nil
}

func checkPassword(password string) error {
	if n := len(password); n < MinPasswordLength || n > MaxPasswordLength {
		return fmt.Errorf("%w: must be %d-%d characters", ErrWeakPassword, MinPasswordLength, MaxPasswordLength)
	}
	return nil
}

// Register creates a USER account.
func (s *IdentityService) Register(ctx context.Context, email, password string) (domain.User, error) {
	return s.create(ctx, email, password, []string{domain.RoleUser})
}

func (s *IdentityService) create(ctx context.Context, email, password string, roles []string) (domain.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return domain.User{}, err
	}
	if err := checkPassword(password); err != nil {
		return domain.User{}, err
	}

	hash, err := cryptox.HashPassword(password)
	if err != nil {
		return domain.User{}, err
	}

	now := clock.OrReal(s.Clock).Now()
	u := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		PasswordHash: hash,
		Roles:        roles,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Store.Users().CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.User{}, ErrUserExists
		}
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate checks a password. Unknown accounts cost the same hash work as
// a wrong password.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			cryptox.BurnPasswordCheck(password)
			return domain.User{}, ErrInvalidCredentials
		}
		return domain.User{}, err
	}

	if err := cryptox.VerifyPassword(password, u.PasswordHash); err != nil {
		if !errors.Is(err, cryptox.ErrPasswordMismatch) {
			slogx.FromContext(ctx).Warn("stored password hash unreadable", slog.String("user_id", u.ID), slogx.Err(err))
		}
		return domain.User{}, ErrInvalidCredentials
	}
	return u, nil
}

// GetBySubject loads the account behind a token subject.
func (s *IdentityService) GetBySubject(ctx context.Context, subject string) (domain.User, error) {
	u, err := s.Store.Users().GetUserByEmail(ctx, subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.User{}, ErrUserNotFound
	}
	return u, err
}

// ChangePassword requires the current password.
func (s *IdentityService) ChangePassword(ctx context.Context, subject, current, next string) error {
	u, err := s.Authenticate(ctx, subject, current)
	if err != nil {
		return err
	}
	if err := checkPassword(next); err != nil {
		return err
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return err
	}
	return s.Store.Users().UpdatePasswordHash(ctx, u.ID, hash, clock.OrReal(s.Clock).Now())
}

// LinkProvider records the subject's id at an external provider.
func (s *IdentityService) LinkProvider(ctx context.Context, subject string, provider domain.Provider, externalID string) (domain.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domain.User{}, ErrInvalidProviderID
	}

	var linked domain.User
	err := s.Store.WithTx(ctx, func(tx store.Tx) error {
		u, err := tx.Users().GetUserByEmail(ctx, subject)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrUserNotFound
			}
			return err
		}

		now := clock.OrReal(s.Clock).Now()
		if err := tx.Users().SetProviderID(ctx, u.ID, provider, externalID, now); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrProviderTaken
			}
			return err
		}

		*provider.Field(&u) = &externalID
		u.UpdatedAt = now
		linked = u
		return nil
	})
	return linked, err
}

// EnsureAdmin creates an ADMIN account when the store has no users. It
// reports whether an account was created.
func (s *IdentityService) EnsureAdmin(ctx context.Context, email, password string) (bool, error) {
	if email == "" || password == "" {
		return false, nil
	}

	empty, err := s.Store.Users().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	if !empty {
		return false, nil
	}

	if _, err := s.create(ctx, email, password, []string{domain.RoleUser, domain.RoleAdmin}); err != nil {
		if errors.Is(err, ErrUserExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
