package redis

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func newTestRepo(t *testing.T) (*RefreshCredentials, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	mr.SetTime(epoch)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRefreshCredentials(rdb, "test", time.Hour), mr
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

func TestUpsertKeepsOnePerSubject(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	first, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)
	require.Equal(t, "alice", first.Subject)
	require.Equal(t, epoch.Add(time.Hour), first.ExpiresAt)

	second, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h2", epoch.Add(2*time.Hour)))
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "h2", second.SecretHash)

	require.False(t, mr.Exists("test:rt:sec:h1"))
	require.True(t, mr.Exists("test:rt:sec:h2"))

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h3", epoch.Add(time.Hour), epoch)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestRotate(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)

	now := epoch.Add(time.Minute)
	rotated, err := repo.RotateRefreshCredential(ctx, "h1", "h2", now.Add(time.Hour), now)
	require.NoError(t, err)
	require.Equal(t, "h2", rotated.SecretHash)
	require.Equal(t, now.Add(time.Hour), rotated.ExpiresAt)
	require.Equal(t, now, rotated.UpdatedAt)
	require.Equal(t, epoch, rotated.CreatedAt)

	require.False(t, mr.Exists("test:rt:sec:h1"))

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h3", now.Add(time.Hour), now)
	require.ErrorIs(t, err, store.ErrNotFound)

	got, err := repo.GetRefreshCredentialBySubject(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "h2", got.SecretHash)
}

func TestRotateExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Minute)))
	require.NoError(t, err)

	later := epoch.Add(2 * time.Minute)
	_, err = repo.RotateRefreshCredential(ctx, "h1", "h2", later.Add(time.Hour), later)
	require.ErrorIs(t, err, store.ErrExpired)

	_, err = repo.GetRefreshCredentialBySubject(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)

	_, err = repo.RotateRefreshCredential(ctx, "h1", "h2", later.Add(time.Hour), later)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConcurrentRotateSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo, _ := newTestRepo(t)

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h0", epoch.Add(time.Hour)))
	require.NoError(t, err)

	var wins atomic.Int32
	var g errgroup.Group
	for i := range 16 {
		g.Go(func() error {
			_, err := repo.RotateRefreshCredential(ctx, "h0", fmt.Sprintf("n%d", i), epoch.Add(time.Hour), epoch)
			if err == nil {
				wins.Add(1)
				return nil
			}
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
}

func TestDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "nobody"))

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Hour)))
	require.NoError(t, err)
	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "alice"))
	require.NoError(t, repo.DeleteRefreshCredentialBySubject(ctx, "alice"))

	require.False(t, mr.Exists("test:rt:sub:alice"))
	require.False(t, mr.Exists("test:rt:sec:h1"))

	n, err := repo.DeleteExpiredRefreshCredentials(ctx, epoch)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRetentionExpiresKeys(t *testing.T) {
	ctx := context.Background()
	repo, mr := newTestRepo(t)

	_, err := repo.UpsertRefreshCredential(ctx, cred("alice", "h1", epoch.Add(time.Minute)))
	require.NoError(t, err)

	// Kept through expiry plus the one hour retention.
	mr.FastForward(time.Hour)
	require.True(t, mr.Exists("test:rt:sub:alice"))

	mr.FastForward(2 * time.Minute)
	require.False(t, mr.Exists("test:rt:sub:alice"))
	require.False(t, mr.Exists("test:rt:sec:h1"))
}

func TestPing(t *testing.T) {
	repo, _ := newTestRepo(t)
	require.NoError(t, repo.Ping(context.Background()))

	down := NewRefreshCredentials(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "", 0)
	require.Error(t, down.Ping(context.Background()))
	require.Equal(t, DefaultRetention, down.retention)
}
