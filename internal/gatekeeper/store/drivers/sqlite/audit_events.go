package sqlite

import (
	"context"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
)

const auditColumns = `id, event_type, principal, description, details, timestamp, ip_address, user_agent, source, outcome, signature`

type auditEventsRepo struct {
	q *queries
}

func (r *auditEventsRepo) CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error {
	_, err := r.q.db.ExecContext(ctx,
		`INSERT INTO audit_events (`+auditColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), e.Principal, e.Description, e.Details, toMillis(e.Timestamp),
		e.IPAddress, e.UserAgent, e.Source, string(e.Outcome), e.Signature,
	)
	return mapConstraint(err)
}

func (r *auditEventsRepo) QueryAuditEvents(ctx context.Context, q domain.AuditQuery) (domain.AuditPage, error) {
	var (
		where []string
		args  []any
	)
	if q.Principal != "" {
		where = append(where, `principal = ?`)
		args = append(args, q.Principal)
	}
	if q.Type != "" {
		where = append(where, `event_type = ?`)
		args = append(args, string(q.Type))
	}
	if !q.From.IsZero() {
		where = append(where, `timestamp >= ?`)
		args = append(args, toMillis(q.From))
	}
	if !q.To.IsZero() {
		where = append(where, `timestamp <= ?`)
		args = append(args, toMillis(q.To))
	}
	if s := strings.TrimSpace(q.Search); s != "" {
		where = append(where, `(instr(lower(description), lower(?)) > 0 OR instr(lower(details), lower(?)) > 0)`)
		args = append(args, s, s)
	}

	clause := ""
	if len(where) > 0 {
		clause = ` WHERE ` + strings.Join(where, ` AND `)
	}

	page := domain.AuditPage{Limit: domain.NormalizeAuditLimit(q.Limit), Offset: max(q.Offset, 0)}

	if err := r.q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`+clause, args...).Scan(&page.Total); err != nil {
		return domain.AuditPage{}, err
	}

	rows, err := r.q.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_events`+clause+
			` ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?`,
		append(args, page.Limit, page.Offset)...,
	)
	if err != nil {
		return domain.AuditPage{}, err
	}
	defer rows.Close()

	page.Events = make([]domain.AuditEvent, 0, page.Limit)
	for rows.Next() {
		var (
			e            domain.AuditEvent
			typ, outcome string
			ts           int64
		)
		if err := rows.Scan(&e.ID, &typ, &e.Principal, &e.Description, &e.Details, &ts,
			&e.IPAddress, &e.UserAgent, &e.Source, &outcome, &e.Signature); err != nil {
			return domain.AuditPage{}, err
		}
		e.Type = domain.EventType(typ)
		e.Outcome = domain.Outcome(outcome)
		e.Timestamp = fromMillis(ts)
		page.Events = append(page.Events, e)
	}
	return page, rows.Err()
}
