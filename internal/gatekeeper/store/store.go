package store

//go:generate mockgen -destination=storemock/audit.go -package=storemock github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store AuditWriter,AuditReader

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
	ErrExpired       = errors.New("store: expired")
)

// Store is the root data access interface. Concrete drivers implement this and
// expose sub-repositories so transactional work cannot nest.
type Store interface {
	Users() Users
	RefreshCredentials() RefreshCredentials
	AuditEvents() AuditEvents

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail matches case-insensitively.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error

	// SetProviderID stores the external subject for provider. Returns
	// ErrAlreadyExists if another user already linked the same id.
	SetProviderID(ctx context.Context, userID string, provider domain.Provider, externalID string, now time.Time) error

	IsEmpty(ctx context.Context) (bool, error)
}

// RefreshCredentials holds at most one credential per subject. Secrets are
// addressed by fingerprint only.
type RefreshCredentials interface {
	// UpsertRefreshCredential replaces any credential the subject already
	// holds and returns the stored row.
	UpsertRefreshCredential(ctx context.Context, c domain.RefreshCredential) (domain.RefreshCredential, error)

	// RotateRefreshCredential swaps the credential whose fingerprint is
	// oldHash for newHash/expiresAt in one atomic step. An expired match is
	// deleted and reported as ErrExpired. No match is ErrNotFound.
	RotateRefreshCredential(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (domain.RefreshCredential, error)

	GetRefreshCredentialBySubject(ctx context.Context, subject string) (domain.RefreshCredential, error)

	// DeleteRefreshCredentialBySubject is a no-op when nothing is stored.
	DeleteRefreshCredentialBySubject(ctx context.Context, subject string) error

	// DeleteExpiredRefreshCredentials is housekeeping. It returns the number
	// of rows removed.
	DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error)
}

// AuditWriter is the append side of the audit trail.
type AuditWriter interface {
	CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error
}

// AuditReader answers filtered, paginated queries, newest first.
type AuditReader interface {
	QueryAuditEvents(ctx context.Context, q domain.AuditQuery) (domain.AuditPage, error)
}

type AuditEvents interface {
	AuditWriter
	AuditReader
}
