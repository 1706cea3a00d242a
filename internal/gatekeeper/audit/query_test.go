package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/drivers/sqlite"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/storemock"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

func TestReaderVerifiesStoredEvents(t *testing.T) {
	ctx := context.Background()
	s, err := sqlite.NewStore(sqlite.FileDSN(":memory:"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	c := clock.NewManual(epoch)
	signer := NewSigner(testKey)
	p := New(Config{Workers: 1}, s.AuditEvents(), signer, c, slogx.Discard())

	p.Record(ctx, Entry{Type: domain.EventLoginSuccess, Principal: "alice", Description: "Login succeeded"})
	c.Advance(time.Minute)
	p.Record(ctx, Entry{Type: domain.EventLoginFailure, Principal: "bob", Description: "Bad password", Outcome: domain.OutcomeFailure})
	p.Close()

	// A row written around the pipeline with a forged signature.
	forged := domain.AuditEvent{
		ID: "zzzz", Type: domain.EventLoginSuccess, Principal: "mallory",
		Timestamp: epoch.Add(2 * time.Minute), Outcome: domain.OutcomeSuccess, Signature: "forged",
	}
	require.NoError(t, s.AuditEvents().CreateAuditEvent(ctx, forged))

	r := &Reader{Store: s.AuditEvents(), Signer: signer}

	page, err := r.List(ctx, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 3, page.Total)
	require.Len(t, page.Events, 3)
	require.Equal(t, "mallory", page.Events[0].Principal)
	require.False(t, page.Events[0].Verified)
	require.True(t, page.Events[1].Verified)
	require.True(t, page.Events[2].Verified)

	page, err = r.ByPrincipal(ctx, "bob", 0, 0)
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	require.Equal(t, 50, page.Limit)

	page, err = r.ByType(ctx, domain.EventLoginSuccess, 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)

	page, err = r.ByRange(ctx, epoch, epoch.Add(time.Minute), 10, 0)
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)

	page, err = r.Search(ctx, "password", 10, 0)
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	require.Equal(t, "bob", page.Events[0].Principal)
}

func TestReaderPropagatesStoreErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	reader := storemock.NewMockAuditReader(ctrl)
	reader.EXPECT().
		QueryAuditEvents(gomock.Any(), domain.AuditQuery{Search: "x", Limit: 5}).
		Return(domain.AuditPage{}, errors.New("disk I/O error"))

	_, err := (&Reader{Store: reader}).Search(context.Background(), "x", 5, 0)
	require.ErrorContains(t, err, "disk I/O error")
}
