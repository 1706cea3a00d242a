package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/idx"
)

func TestPaging(t *testing.T) {
	tests := []struct {
		query      string
		page, size int
		wantErr    bool
	}{
		{"", 0, domain.DefaultAuditLimit, false},
		{"page=2&size=10", 2, 10, false},
		{"page=1&size=1000", 1, domain.MaxAuditLimit, false},
		{"size=0", 0, 0, true},
		{"page=-1", 0, 0, true},
		{"size=ten", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/admin/audit?"+tt.query, nil)
			page, size, err := paging(r)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.page, page)
			require.Equal(t, tt.size, size)
		})
	}
}

func TestAuditListOversizedPageReachesEveryRow(t *testing.T) {
	e := newEnv(t, nil, nil)
	ctx := context.Background()
	signer := e.router.AuditReader.Signer

	const n = domain.MaxAuditLimit + 5
	for i := range n {
		ev := domain.AuditEvent{
			ID:        idx.NewAt(epoch).String(),
			Type:      domain.EventAccessGranted,
			Principal: email,
			Timestamp: epoch.Add(time.Duration(i) * time.Second),
			Outcome:   domain.OutcomeSuccess,
		}
		ev.Signature = signer.Sign(ev)
		require.NoError(t, e.store.AuditEvents().CreateAuditEvent(ctx, ev))
	}

	h := &AuditHandler{Reader: e.router.AuditReader}
	fetch := func(query string) authsdk.AuditPageResponse {
		rec := httptest.NewRecorder()
		h.HandleList(rec, httptest.NewRequest(http.MethodGet, "/admin/audit?"+query, nil))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		return decode[authsdk.AuditPageResponse](t, rec)
	}

	first := fetch("page=0&size=1000")
	require.Equal(t, n, first.Total)
	require.Equal(t, domain.MaxAuditLimit, first.Size)
	require.Len(t, first.Events, domain.MaxAuditLimit)

	second := fetch("page=1&size=1000")
	require.Equal(t, 1, second.Page)
	require.Equal(t, domain.MaxAuditLimit, second.Size)
	require.Len(t, second.Events, n-domain.MaxAuditLimit)

	// The two pages together cover the trail without gaps.
	require.True(t, first.Events[len(first.Events)-1].Timestamp.After(second.Events[0].Timestamp))
	require.Equal(t, epoch, second.Events[len(second.Events)-1].Timestamp.UTC())
}
