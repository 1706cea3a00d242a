package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

const userColumns = `id, email, password_hash, roles, google_id, spotify_id, apple_id, soundcloud_id, created_at, updated_at`

type usersRepo struct {
	q *queries
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                              domain.User
		roles                          string
		google, spotify, apple, soundc sql.NullString
		createdAt, updatedAt           int64
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &roles, &google, &spotify, &apple, &soundc, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Roles = splitAndFilter(roles)
	u.GoogleID = mapNullStringPtr(google)
	u.SpotifyID = mapNullStringPtr(spotify)
	u.AppleID = mapNullStringPtr(apple)
	u.SoundCloudID = mapNullStringPtr(soundc)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.q.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, strings.TrimSpace(email)))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO users (id, email, password_hash, roles, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, u.PasswordHash, strings.Join(u.Roles, " "),
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, now time.Time) error {
	res, err := r.q.db.ExecContext(ctx,
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		hash, toMillis(now), userID)
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (r *usersRepo) SetProviderID(ctx context.Context, userID string, provider domain.Provider, externalID string, now time.Time) error {
	col := provider.Column()
	if col == "" {
		return fmt.Errorf("sqlite: unknown provider %q", provider)
	}

	// col comes from a closed mapping, never from input.
	res, err := r.q.db.ExecContext(ctx,
		`UPDATE users SET `+col+` = ?, updated_at = ? WHERE id = ?`,
		externalID, toMillis(now), userID)
	if err != nil {
		return mapConstraint(err)
	}
	return requireOneRow(res)
}

func (r *usersRepo) IsEmpty(ctx context.Context) (bool, error) {
	var n int
	if err := r.q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return false, err
	}
	return n == 0, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
