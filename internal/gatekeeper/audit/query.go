package audit

import (
	"context"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/store"
)

// VerifiedEvent is an event plus the result of checking its signature.
type VerifiedEvent struct {
	domain.AuditEvent
	Verified bool
}

// Page is one page of verified results, newest first.
type Page struct {
	Events []VerifiedEvent
	Total  int
	Limit  int
	Offset int
}

// Reader is the read side of the trail. It delegates filtering to the store
// and checks each returned event against the signer.
type Reader struct {
	Store  store.AuditReader
	Signer *Signer
}

func (r *Reader) Query(ctx context.Context, q domain.AuditQuery) (Page, error) {
	res, err := r.Store.QueryAuditEvents(ctx, q)
	if err != nil {
		return Page{}, err
	}

	page := Page{
		Events: make([]VerifiedEvent, 0, len(res.Events)),
		Total:  res.Total,
		Limit:  res.Limit,
		Offset: res.Offset,
	}
	for _, e := range res.Events {
		page.Events = append(page.Events, VerifiedEvent{AuditEvent: e, Verified: r.Signer.Verify(e)})
	}
	return page, nil
}

func (r *Reader) List(ctx context.Context, limit, offset int) (Page, error) {
	return r.Query(ctx, domain.AuditQuery{Limit: limit, Offset: offset})
}

func (r *Reader) ByPrincipal(ctx context.Context, principal string, limit, offset int) (Page, error) {
	return r.Query(ctx, domain.AuditQuery{Principal: principal, Limit: limit, Offset: offset})
}

func (r *Reader) ByType(ctx context.Context, t domain.EventType, limit, offset int) (Page, error) {
	return r.Query(ctx, domain.AuditQuery{Type: t, Limit: limit, Offset: offset})
}

func (r *Reader) ByRange(ctx context.Context, from, to time.Time, limit, offset int) (Page, error) {
	return r.Query(ctx, domain.AuditQuery{From: from, To: to, Limit: limit, Offset: offset})
}

func (r *Reader) Search(ctx context.Context, text string, limit, offset int) (Page, error) {
	return r.Query(ctx, domain.AuditQuery{Search: text, Limit: limit, Offset: offset})
}
