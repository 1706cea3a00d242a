package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/audit"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// AuditHandler serves the read side of the audit trail.
type AuditHandler struct {
	Reader *audit.Reader
}

// paging reads ?page (zero based) and ?size. Oversized pages are clamped here
// so that page*size addresses the rows the store will actually return.
func paging(r *http.Request) (page, size int, err error) {
	size = domain.DefaultAuditLimit
	if v := r.URL.Query().Get("size"); v != "" {
		if size, err = strconv.Atoi(v); err != nil || size <= 0 {
			return 0, 0, fmt.Errorf("size must be a positive integer")
		}
		size = domain.NormalizeAuditLimit(size)
	}
	if v := r.URL.Query().Get("page"); v != "" {
		if page, err = strconv.Atoi(v); err != nil || page < 0 {
			return 0, 0, fmt.Errorf("page must be a non-negative integer")
		}
	}
	return page, size, nil
}

// serve runs one query and writes the page.
func (h *AuditHandler) serve(w http.ResponseWriter, r *http.Request, q domain.AuditQuery, details string) gate.Outcome {
	page, size, err := paging(r)
	if err != nil {
		httpx.ErrBadRequest.WithDetails(err.Error()).WriteError(w)
		return gate.Outcome{Description: "Invalid audit query", Details: details}
	}
	q.Limit = size
	q.Offset = page * size

	res, err := h.Reader.Query(r.Context(), q)
	if err != nil {
		slogx.FromContext(r.Context()).Error("failed to query audit events", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Result: domain.OutcomeException, Description: "Audit query failed", Details: details}
	}

	resp := authsdk.AuditPageResponse{
		Events: make([]authsdk.AuditEventResponse, 0, len(res.Events)),
		Total:  res.Total,
		Page:   page,
		Size:   res.Limit,
	}
	for _, e := range res.Events {
		resp.Events = append(resp.Events, authsdk.AuditEventResponse{
			ID:          e.ID,
			Type:        string(e.Type),
			Principal:   e.Principal,
			Description: e.Description,
			Details:     e.Details,
			Timestamp:   e.Timestamp,
			IPAddress:   e.IPAddress,
			UserAgent:   e.UserAgent,
			Source:      e.Source,
			Outcome:     string(e.Outcome),
			Verified:    e.Verified,
		})
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
	return gate.Outcome{Description: "Audit trail queried", Details: details}
}

func (h *AuditHandler) HandleList(w http.ResponseWriter, r *http.Request) gate.Outcome {
	return h.serve(w, r, domain.AuditQuery{}, "filter=all")
}

func (h *AuditHandler) HandleByPrincipal(w http.ResponseWriter, r *http.Request) gate.Outcome {
	principal := r.PathValue("principal")
	return h.serve(w, r, domain.AuditQuery{Principal: principal}, "filter=principal:"+principal)
}

func (h *AuditHandler) HandleByType(w http.ResponseWriter, r *http.Request) gate.Outcome {
	t, err := domain.ParseEventType(r.PathValue("type"))
	if err != nil {
		httpx.ErrBadRequest.WithDetails("unknown event type").WriteError(w)
		return gate.Outcome{Description: "Invalid audit query", Details: "filter=type"}
	}
	return h.serve(w, r, domain.AuditQuery{Type: t}, "filter=type:"+string(t))
}

// HandleByRange takes inclusive RFC3339 bounds in ?from and ?to.
func (h *AuditHandler) HandleByRange(w http.ResponseWriter, r *http.Request) gate.Outcome {
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil || to.Before(from) {
		httpx.ErrBadRequest.WithDetails("from and to must be RFC3339 timestamps with from <= to").WriteError(w)
		return gate.Outcome{Description: "Invalid audit query", Details: "filter=range"}
	}
	return h.serve(w, r, domain.AuditQuery{From: from, To: to},
		fmt.Sprintf("filter=range:%s..%s", from.Format(time.RFC3339), to.Format(time.RFC3339)))
}

func (h *AuditHandler) HandleSearch(w http.ResponseWriter, r *http.Request) gate.Outcome {
	text := strings.TrimSpace(r.URL.Query().Get("q"))
	if text == "" {
		httpx.ErrBadRequest.WithDetails("q is required").WriteError(w)
		return gate.Outcome{Description: "Invalid audit query", Details: "filter=search"}
	}
	return h.serve(w, r, domain.AuditQuery{Search: text}, "filter=search")
}
