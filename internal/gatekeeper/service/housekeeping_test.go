package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

func TestHousekeepingCleanup(t *testing.T) {
	ctx := context.Background()
	c := newManual()

	refresh := &RefreshService{Store: newTestStore(t).RefreshCredentials(), Clock: c, TTL: time.Minute}
	_, err := refresh.Issue(ctx, "alice")
	require.NoError(t, err)

	limiter, err := ratelimit.New(ratelimit.DefaultConfig(), c)
	require.NoError(t, err)
	limiter.Resolve(ratelimit.TierAuth, "203.0.113.1")
	for range 5 {
		limiter.RecordFailure("203.0.113.1")
	}

	hk := NewHousekeepingService(refresh.Store, limiter, c, slogx.Discard(), time.Hour)

	hk.Cleanup(ctx)
	_, err = refresh.Store.GetRefreshCredentialBySubject(ctx, "alice")
	require.NoError(t, err)

	c.Advance(time.Hour)
	hk.Cleanup(ctx)

	_, err = refresh.Store.GetRefreshCredentialBySubject(ctx, "alice")
	require.Error(t, err)

	buckets, throttles := limiter.Len()
	require.Zero(t, buckets)
	require.Zero(t, throttles)
}

func TestHousekeepingStartStop(t *testing.T) {
	hk := NewHousekeepingService(nil, nil, nil, slogx.Discard(), 0)
	require.Equal(t, 5*time.Minute, hk.Interval)

	hk.Start()
	hk.Stop()
}
