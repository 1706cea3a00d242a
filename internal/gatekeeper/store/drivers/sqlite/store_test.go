package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(FileDSN(":memory:"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestApplyMigrationsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ApplyMigrations())
	require.NoError(t, s.Ping(context.Background()))
}

func TestFileDSN(t *testing.T) {
	require.Equal(t, ":memory:?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", FileDSN(":memory:"))
	require.Contains(t, FileDSN("/var/lib/gatekeeper.db"), "journal_mode(WAL)")
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	users := s.Users()

	empty, err := users.IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	u := domain.User{
		ID:           "u1",
		Email:        "Alice@Example.com",
		PasswordHash: "hash",
		Roles:        []string{domain.RoleUser, domain.RoleAdmin},
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
	require.NoError(t, users.CreateUser(ctx, u))

	got, err := users.GetUserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", got.ID)
	require.Equal(t, []string{domain.RoleUser, domain.RoleAdmin}, got.Roles)
	require.Equal(t, epoch, got.CreatedAt)
	require.Nil(t, got.GoogleID)

	dup := u
	dup.ID = "u2"
	dup.Email = "ALICE@example.com"
	require.ErrorIs(t, users.CreateUser(ctx, dup), store.ErrAlreadyExists)

	_, err = users.GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)

	later := epoch.Add(time.Hour)
	require.NoError(t, users.UpdatePasswordHash(ctx, "u1", "hash2", later))
	got, err = users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "hash2", got.PasswordHash)
	require.Equal(t, later, got.UpdatedAt)

	require.ErrorIs(t, users.UpdatePasswordHash(ctx, "missing", "x", later), store.ErrNotFound)

	empty, err = users.IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)
}

func TestUsersSetProviderID(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	users := s.Users()

	for _, id := range []string{"u1", "u2"} {
		require.NoError(t, users.CreateUser(ctx, domain.User{
			ID: id, Email: id + "@example.com", PasswordHash: "h",
			Roles: []string{domain.RoleUser}, CreatedAt: epoch, UpdatedAt: epoch,
		}))
	}

	require.NoError(t, users.SetProviderID(ctx, "u1", domain.ProviderSpotify, "sp-1", epoch))
	got, err := users.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.SpotifyID)
	require.Equal(t, "sp-1", *got.SpotifyID)
	require.Nil(t, got.GoogleID)

	require.ErrorIs(t, users.SetProviderID(ctx, "u2", domain.ProviderSpotify, "sp-1", epoch), store.ErrAlreadyExists)
	require.ErrorIs(t, users.SetProviderID(ctx, "missing", domain.ProviderApple, "ap-1", epoch), store.ErrNotFound)
	require.Error(t, users.SetProviderID(ctx, "u1", domain.Provider("MYSPACE"), "x", epoch))
}

func cred(subject, hash string, expires time.Time) domain.RefreshCredential {
	return domain.RefreshCredential{
		ID:         "id-" + subject + "-" + hash,
		Subject:    subject,
		SecretHash: hash,
		ExpiresAt:  expires,
		CreatedAt:  epoch,
		UpdatedAt:  epoch,
	}
}

func TestRefreshUpsertKeepsOnePerSubject(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).RefreshCredentials()

	first, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)

	second, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h2", epoch.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "h2", second.SecretHash)
	require.Equal(t, epoch.Add(2*time.Hour), second.ExpiresAt)

	got, err := repo.GetRefreshCredentialBySubject(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "h2", got.SecretHash)

	// The replaced fingerprint no longer rotates.
	_, err = repo.RotateRefreshCredential(ctx, "h1", "h3", epoch.Add(3*time.Hour), epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshRotate(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).RefreshCredentials()

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)

	now := epoch.Add(time.Minute)
	rotated, err := repo.RotateRefreshCredential(ctx, "h1", "h2", now.Add(time.Hour), now)
	require.NoError(t, err)
	require.Equal(t, "alice", rotated.Subject)
	require.Equal(t, "h2", rotated.SecretHash)
	require.Equal(t, now.Add(time.Hour), rotated.ExpiresAt)
	require.Equal(t, now, rotated.UpdatedAt)

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h3", now.Add(time.Hour), now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshRotateExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).RefreshCredentials()

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch))
	require.NoError(t, err)

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h2", epoch.Add(time.Hour), epoch)
	require.ErrorIs(t, err, store.ErrExpired)

	_, err = repo.GetRefreshCredentialBySubject(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h2", epoch.Add(time.Hour), epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRefreshConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).RefreshCredentials()

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h0", epoch.Add(time.Hour)))
	require.NoError(t, err)

	var wins, stale atomic.Int32
	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			_, err := repo.RotateRefreshCredential(ctx, "h0", fmt.Sprintf("next-%d", i), epoch.Add(2*time.Hour), epoch)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, store.ErrNotFound):
				stale.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, 15, stale.Load())
}

func TestRefreshDelete(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t).RefreshCredentials()

	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "nobody"))

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)
	_, err = repo.UpsertRefreshCredential(ctx, cred("bob", "h2", epoch))
	require.NoError(t, err)

	n, err := repo.DeleteExpiredRefreshCredentials(ctx, epoch)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "alice"))
	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "alice"))
	_, err = repo.GetRefreshCredentialBySubject(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestWithTxRollback(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Tx) error {
		if _, err := tx.RefreshCredentials().UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.RefreshCredentials().GetRefreshCredentialBySubject(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		_, err := tx.RefreshCredentials().UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
		return err
	}))
	_, err = s.RefreshCredentials().GetRefreshCredentialBySubject(ctx, "alice")
	require.NoError(t, err)
}

func auditEvent(id string, typ domain.EventType, principal, desc string, ts time.Time) domain.AuditEvent {
	return domain.AuditEvent{
		ID:          id,
		Type:        typ,
		Principal:   principal,
		Description: desc,
		Details:     "details for " + id,
		Timestamp:   ts,
		IPAddress:   "203.0.113.5",
		UserAgent:   "test",
		Source:      "/login",
		Outcome:     domain.OutcomeSuccess,
		Signature:   "sig-" + id,
	}
}

func seedAudit(t *testing.T, s *Store) {
	t.Helper()
	ctx := context.Background()
	events := []domain.AuditEvent{
		auditEvent("01", domain.EventLoginSuccess, "alice", "Login succeeded", epoch),
		auditEvent("02", domain.EventLoginFailure, "alice", "Bad password", epoch.Add(time.Minute)),
		auditEvent("03", domain.EventLoginFailure, "bob", "Bad password", epoch.Add(2*time.Minute)),
		auditEvent("04", domain.EventAccessDenied, "anonymous", "Rate limited", epoch.Add(3*time.Minute)),
		auditEvent("05", domain.EventLogout, "alice", "Logged out", epoch.Add(4*time.Minute)),
	}
	for _, e := range events {
		require.NoError(t, s.AuditEvents().CreateAuditEvent(ctx, e))
	}
}

func ids(page domain.AuditPage) []string {
	out := make([]string, 0, len(page.Events))
	for _, e := range page.Events {
		out = append(out, e.ID)
	}
	return out
}

func TestAuditQuery(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAudit(t, s)
	repo := s.AuditEvents()

	tests := []struct {
		name  string
		q     domain.AuditQuery
		want  []string
		total int
	}{
		{"all newest first", domain.AuditQuery{}, []string{"05", "04", "03", "02", "01"}, 5},
		{"by principal", domain.AuditQuery{Principal: "alice"}, []string{"05", "02", "01"}, 3},
		{"by type", domain.AuditQuery{Type: domain.EventLoginFailure}, []string{"03", "02"}, 2},
		{"by range", domain.AuditQuery{From: epoch.Add(time.Minute), To: epoch.Add(3 * time.Minute)}, []string{"04", "03", "02"}, 3},
		{"search description", domain.AuditQuery{Search: "bad PASSWORD"}, []string{"03", "02"}, 2},
		{"search details", domain.AuditQuery{Search: "for 04"}, []string{"04"}, 1},
		{"combined", domain.AuditQuery{Principal: "alice", Type: domain.EventLoginFailure}, []string{"02"}, 1},
		{"paged", domain.AuditQuery{Limit: 2, Offset: 1}, []string{"04", "03"}, 5},
		{"past the end", domain.AuditQuery{Offset: 10}, []string{}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := repo.QueryAuditEvents(ctx, tt.q)
			require.NoError(t, err)
			require.Equal(t, tt.want, ids(page))
			require.Equal(t, tt.total, page.Total)
		})
	}
}

func TestAuditRoundTripFields(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAudit(t, s)

	page, err := s.AuditEvents().QueryAuditEvents(ctx, domain.AuditQuery{Principal: "bob"})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, auditEvent("03", domain.EventLoginFailure, "bob", "Bad password", epoch.Add(2*time.Minute)), page.Events[0])
}

func TestAuditAppendOnly(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedAudit(t, s)

	_, err := s.db.ExecContext(ctx, `UPDATE audit_events SET principal = 'mallory' WHERE id = '01'`)
	require.Error(t, err)

	_, err = s.db.ExecContext(ctx, `DELETE FROM audit_events`)
	require.Error(t, err)

	require.ErrorIs(t, s.AuditEvents().CreateAuditEvent(ctx, auditEvent("01", domain.EventLogout, "x", "dup", epoch)), store.ErrAlreadyExists)
}
