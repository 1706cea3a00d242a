package domain

import (
	"fmt"
	"strings"
	"time"
)

// AnonymousPrincipal is recorded when no identity is known.
const AnonymousPrincipal = "anonymous"

type EventType string

const (
	EventLoginSuccess    EventType = "LOGIN_SUCCESS"
	EventLoginFailure    EventType = "LOGIN_FAILURE"
	EventLogout          EventType = "LOGOUT"
	EventRegister        EventType = "REGISTER"
	EventTokenRefresh    EventType = "TOKEN_REFRESH"
	EventPasswordChange  EventType = "PASSWORD_CHANGE"
	EventProviderLink    EventType = "PROVIDER_LINK"
	EventAccessDenied    EventType = "ACCESS_DENIED"
	EventAccessGranted   EventType = "ACCESS_GRANTED"
	EventAuditQuery      EventType = "AUDIT_QUERY"
	EventSystemException EventType = "SYSTEM_EXCEPTION"
)

var eventTypes = []EventType{
	EventLoginSuccess, EventLoginFailure, EventLogout, EventRegister,
	EventTokenRefresh, EventPasswordChange, EventProviderLink,
	EventAccessDenied, EventAccessGranted, EventAuditQuery, EventSystemException,
}

func ParseEventType(s string) (EventType, error) {
	t := EventType(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range eventTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown event type %q", s)
}

type Outcome string

const (
	OutcomeSuccess     Outcome = "SUCCESS"
	OutcomeFailure     Outcome = "FAILURE"
	OutcomeThrottled   Outcome = "THROTTLED"
	OutcomeRateLimited Outcome = "RATE_LIMITED"
	OutcomeDenied      Outcome = "DENIED"
	OutcomeException   Outcome = "EXCEPTION"
)

// AuditEvent is immutable once written.
type AuditEvent struct {
	ID          string
	Type        EventType
	Principal   string
	Description string
	Details     string
	Timestamp   time.Time
	IPAddress   string
	UserAgent   string
	Source      string
	Outcome     Outcome
	Signature   string // HMAC over the canonical fields
}

const (
	DefaultAuditLimit = 50
	MaxAuditLimit     = 500
)

// NormalizeAuditLimit clamps a requested page size to (0, MaxAuditLimit].
// Offsets must be computed from the clamped value.
func NormalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultAuditLimit
	case limit > MaxAuditLimit:
		return MaxAuditLimit
	}
	return limit
}

// AuditQuery filters the audit trail. Zero fields do not filter.
type AuditQuery struct {
	Principal string
	Type      EventType
	From      time.Time
	To        time.Time
	Search    string // substring of description or details
	Limit     int
	Offset    int
}

// AuditPage is one page of results, newest first.
type AuditPage struct {
	Events []AuditEvent
	Total  int
	Limit  int
	Offset int
}
