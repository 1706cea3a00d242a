package audit

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store/storemock"
	"github.com/aussiebroadwan/gatekeeper/pkg/clock"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

var (
	epoch   = time.Date(2025, 7, 1, 8, 30, 0, 0, time.UTC)
	testKey = []byte("audit-signing-key-audit-signing-key")
)

// memWriter collects events in memory.
type memWriter struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (w *memWriter) CreateAuditEvent(_ context.Context, e domain.AuditEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events = append(w.events, e)
	return nil
}

func (w *memWriter) all() []domain.AuditEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.AuditEvent(nil), w.events...)
}

func requestContext(t *testing.T) context.Context {
	t.Helper()
	var ctx context.Context
	h := httpx.RequestInfoMiddleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx = r.Context()
	}))
	r := httptest.NewRequest(http.MethodPost, "/login", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 10.0.0.1")
	r.Header.Set("User-Agent", "pipeline-test")
	h.ServeHTTP(httptest.NewRecorder(), r)
	return ctx
}

func TestRecordEnrichesFromRequest(t *testing.T) {
	w := &memWriter{}
	p := New(Config{}, w, NewSigner(testKey), clock.NewManual(epoch), slogx.Discard())

	p.Record(requestContext(t), Entry{
		Type:        domain.EventLoginFailure,
		Description: "Bad password",
		Details:     "attempt=2",
		Outcome:     domain.OutcomeFailure,
	})
	p.Close()

	events := w.all()
	require.Len(t, events, 1)
	e := events[0]
	require.NotEmpty(t, e.ID)
	require.Equal(t, domain.EventLoginFailure, e.Type)
	require.Equal(t, domain.AnonymousPrincipal, e.Principal)
	require.Equal(t, "Bad password", e.Description)
	require.Equal(t, "attempt=2", e.Details)
	require.Equal(t, epoch, e.Timestamp)
	require.Equal(t, "203.0.113.50", e.IPAddress)
	require.Equal(t, "pipeline-test", e.UserAgent)
	require.Equal(t, "/login", e.Source)
	require.Equal(t, domain.OutcomeFailure, e.Outcome)
	require.True(t, p.Signer().Verify(e))

	require.Equal(t, Stats{Written: 1}, p.Stats())
}

func TestRecordPrincipalResolution(t *testing.T) {
	w := &memWriter{}
	p := New(Config{Workers: 1}, w, nil, clock.NewManual(epoch), slogx.Discard())

	authed := httpx.ContextWithIdentity(context.Background(), httpx.Identity{Subject: "alice@example.com"})
	p.Record(authed, Entry{Type: domain.EventLogout})
	p.Record(authed, Entry{Type: domain.EventLogout, Principal: "explicit"})
	p.Record(context.Background(), Entry{Type: domain.EventLogout})
	p.Close()

	got := map[string]bool{}
	for _, e := range w.all() {
		got[e.Principal] = true
		require.Equal(t, domain.OutcomeSuccess, e.Outcome)
		require.Empty(t, e.IPAddress, "no request context")
		require.Empty(t, e.Signature, "nil signer leaves events unsigned")
	}
	require.Equal(t, map[string]bool{"alice@example.com": true, "explicit": true, "anonymous": true}, got)
}

func TestRecordSurvivesCanceledContext(t *testing.T) {
	w := &memWriter{}
	p := New(Config{}, w, nil, nil, slogx.Discard())

	ctx, cancel := context.WithCancel(requestContext(t))
	cancel()
	p.Record(ctx, Entry{Type: domain.EventLoginSuccess})
	p.Close()

	require.Len(t, w.all(), 1)
}

func TestRecordWriterOutageIsContained(t *testing.T) {
	ctrl := gomock.NewController(t)
	writer := storemock.NewMockAuditWriter(ctrl)
	writer.EXPECT().
		CreateAuditEvent(gomock.Any(), gomock.Any()).
		Return(errors.New("database is locked")).
		Times(3)

	var logs bytes.Buffer
	logger := slogx.NewWithoutDefault(slogx.Config{Format: "json", Output: &syncWriter{w: &logs}})
	p := New(Config{Workers: 1}, writer, nil, nil, logger)

	for range 3 {
		p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess})
	}
	p.Close()

	require.Equal(t, uint64(3), p.Stats().Failed)
	require.Zero(t, p.Stats().Written)
	assert.Contains(t, logs.String(), "audit event not persisted")
	assert.Contains(t, logs.String(), "database is locked")
}

type panicWriter struct{}

func (panicWriter) CreateAuditEvent(context.Context, domain.AuditEvent) error { panic("boom") }

func TestRecordWriterPanicIsContained(t *testing.T) {
	p := New(Config{Workers: 1}, panicWriter{}, nil, nil, slogx.Discard())
	p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess})
	p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess})
	p.Close()

	require.Equal(t, uint64(2), p.Stats().Failed)
}

// blockingWriter parks every write until release is closed.
type blockingWriter struct {
	entered chan struct{}
	release chan struct{}
}

func (w *blockingWriter) CreateAuditEvent(ctx context.Context, _ domain.AuditEvent) error {
	w.entered <- struct{}{}
	<-w.release
	return nil
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	w := &blockingWriter{entered: make(chan struct{}, 8), release: make(chan struct{})}
	p := New(Config{BufferSize: 1, Workers: 1}, w, nil, nil, slogx.Discard())

	p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess})
	<-w.entered // worker holds the first event

	p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess}) // buffered

	done := make(chan struct{})
	go func() {
		p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess}) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}

	require.Equal(t, uint64(1), p.Stats().Dropped)

	close(w.release)
	p.Close()
	require.Equal(t, uint64(2), p.Stats().Written)
}

func TestRecordAfterClose(t *testing.T) {
	w := &memWriter{}
	p := New(Config{}, w, nil, nil, slogx.Discard())
	p.Close()
	p.Close()

	p.Record(context.Background(), Entry{Type: domain.EventLoginSuccess})
	require.Empty(t, w.all())
	require.Equal(t, uint64(1), p.Stats().Dropped)

	var nilPipeline *Pipeline
	nilPipeline.Record(context.Background(), Entry{})
	nilPipeline.Close()
	require.Equal(t, Stats{}, nilPipeline.Stats())
}

func TestRecordEventIDsAreUnique(t *testing.T) {
	w := &memWriter{}
	p := New(Config{BufferSize: 512, Workers: 4}, w, nil, clock.NewManual(epoch), slogx.Discard())

	var wg sync.WaitGroup
	for range 200 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Record(context.Background(), Entry{Type: domain.EventAccessGranted})
		}()
	}
	wg.Wait()
	p.Close()

	seen := map[string]struct{}{}
	for _, e := range w.all() {
		seen[e.ID] = struct{}{}
	}
	require.Len(t, seen, 200)
}

type syncWriter struct {
	mu sync.Mutex
	w  *bytes.Buffer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func TestBuildOrdersEqualTimestampsByMintOrder(t *testing.T) {
	p := New(Config{}, &memWriter{}, nil, clock.NewManual(epoch), slogx.Discard())
	t.Cleanup(p.Close)

	prev := p.Build(context.Background(), Entry{Type: domain.EventLoginFailure})
	for range 500 {
		// Request IDs are minted on the wall clock between audit events.
		_ = idx.New()

		next := p.Build(context.Background(), Entry{Type: domain.EventLoginFailure})
		require.Equal(t, prev.Timestamp, next.Timestamp)
		require.Less(t, prev.ID, next.ID)
		prev = next
	}
}

func TestRecordDuringCloseIsWrittenOrDropped(t *testing.T) {
	for range 50 {
		w := &memWriter{}
		p := New(Config{BufferSize: 256, Workers: 2}, w, nil, clock.NewManual(epoch), slogx.Discard())

		const senders, perSender = 8, 25
		var g errgroup.Group
		for range senders {
			g.Go(func() error {
				for range perSender {
					p.Record(context.Background(), Entry{Type: domain.EventAccessGranted})
				}
				return nil
			})
		}
		g.Go(func() error {
			p.Close()
			return nil
		})
		require.NoError(t, g.Wait())
		p.Close()

		stats := p.Stats()
		require.Zero(t, stats.Queued, "nothing left behind in the queue")
		require.Equal(t, uint64(senders*perSender), stats.Written+stats.Dropped)
		require.Len(t, w.all(), int(stats.Written))
	}
}
