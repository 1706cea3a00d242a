package sqlite

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const refreshColumns = `id, subject, secret_hash, expires_at, created_at, updated_at`

type refreshCredentialsRepo struct {
	q *queries
}

func scanRefreshCredential(row scanner) (domain.RefreshCredential, error) {
	var (
		c                               domain.RefreshCredential
		expiresAt, createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Subject, &c.SecretHash, &expiresAt, &createdAt, &updatedAt); err != nil {
		return domain.RefreshCredential{}, mapNotFound(err)
	}
	c.ExpiresAt = fromMillis(expiresAt)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *refreshCredentialsRepo) UpsertRefreshCredential(ctx context.Context, c domain.RefreshCredential) (domain.RefreshCredential, error) {
	row := r.q.db.QueryRowContext(ctx,
		`INSERT INTO refresh_credentials (`+refreshColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (subject) DO UPDATE SET
		     secret_hash = excluded.secret_hash,
		     expires_at  = excluded.expires_at,
		     updated_at  = excluded.updated_at
		 RETURNING `+refreshColumns,
		c.ID, c.Subject, c.SecretHash,
		toMillis(c.ExpiresAt), toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	stored, err := scanRefreshCredential(row)
	if err != nil {
		return domain.RefreshCredential{}, mapConstraint(err)
	}
	return stored, nil
}

func (r *refreshCredentialsRepo) RotateRefreshCredential(ctx context.Context, oldHash, newHash string, expiresAt, now time.Time) (domain.RefreshCredential, error) {
	// Compare-and-swap on the fingerprint: only one caller can match oldHash.
	row := r.q.db.QueryRowContext(ctx,
		`UPDATE refresh_credentials
		 SET secret_hash = ?, expires_at = ?, updated_at = ?
		 WHERE secret_hash = ? AND expires_at > ?
		 RETURNING `+refreshColumns,
		newHash, toMillis(expiresAt), toMillis(now), oldHash, toMillis(now),
	)
	c, err := scanRefreshCredential(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.RefreshCredential{}, err
	}

	res, err := r.q.db.ExecContext(ctx,
		`DELETE FROM refresh_credentials WHERE secret_hash = ? AND expires_at <= ?`,
		oldHash, toMillis(now))
	if err != nil {
		return domain.RefreshCredential{}, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return domain.RefreshCredential{}, store.ErrExpired
	}
	return domain.RefreshCredential{}, store.ErrNotFound
}

func (r *refreshCredentialsRepo) GetRefreshCredentialBySubject(ctx context.Context, subject string) (domain.RefreshCredential, error) {
	return scanRefreshCredential(r.q.db.QueryRowContext(ctx,
		`SELECT `+refreshColumns+` FROM refresh_credentials WHERE subject = ?`, subject))
}

func (r *refreshCredentialsRepo) DeleteRefreshCredentialBySubject(ctx context.Context, subject string) error {
	_, err := r.q.db.ExecContext(ctx, `DELETE FROM refresh_credentials WHERE subject = ?`, subject)
	return err
}

func (r *refreshCredentialsRepo) DeleteExpiredRefreshCredentials(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.q.db.ExecContext(ctx,
		`DELETE FROM refresh_credentials WHERE expires_at <= ?`, toMillis(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
