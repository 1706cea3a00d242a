// Package gate composes throttling, bucket limiting, credential checks and
// audit into one decision per request.
package gate

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/audit"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

const (
	RateLimitRemainingHeader = "X-Rate-Limit-Remaining"
	RetryAfterHeader         = "Retry-After"
)

// Policy describes how a route is guarded.
type Policy struct {
	// Tier selects the bucket class. Buckets are keyed by client IP.
	Tier ratelimit.Tier

	// AuthEndpoint enables the IP throttle check and failure/success
	// reporting to the limiter.
	AuthEndpoint bool

	// Protected routes require a valid access token.
	Protected bool

	// Roles, when set, require the identity to carry at least one of them.
	Roles []string

	// Event is the terminal audit event type used when the handler does not
	// name one. Empty on an unprotected route means no terminal audit.
	Event domain.EventType
}

// Outcome is what a guarded handler reports back to the gate after writing
// its response.
type Outcome struct {
	Event       domain.EventType
	Principal   string
	Result      domain.Outcome
	Description string
	Details     string

	// AuthFailure marks a failed credential check inside the handler, such
	// as a wrong password or an unknown refresh secret.
	AuthFailure bool
}

// HandlerFunc is a route handler that reports its outcome.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) Outcome

// Gate guards handlers. All fields are required except Audit, whose nil
// value drops events.
type Gate struct {
	Tokens  *service.TokenService
	Limiter *ratelimit.Limiter
	Audit   *audit.Pipeline
}

func New(tokens *service.TokenService, limiter *ratelimit.Limiter, pipeline *audit.Pipeline) *Gate {
	return &Gate{Tokens: tokens, Limiter: limiter, Audit: pipeline}
}

// Guard wraps h with the gate protocol for policy p.
func (g *Gate) Guard(p Policy, h HandlerFunc) http.Handler {
	if p.Event == "" && p.Protected {
		p.Event = domain.EventAccessGranted
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g.serve(p, h, w, r)
	})
}

func (g *Gate) serve(p Policy, h HandlerFunc, w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, ok := httpx.RequestInfoFromContext(ctx)
	if !ok {
		info = httpx.RequestInfo{
			IPAddress: httpx.ClientIP(r),
			UserAgent: r.UserAgent(),
			Path:      r.URL.Path,
		}
		ctx = httpx.ContextWithRequestInfo(ctx, info)
		r = r.WithContext(ctx)
	}
	ip := info.IPAddress

	// Throttle.
	if p.AuthEndpoint {
		if throttled, remaining := g.Limiter.IsThrottled(ip); throttled {
			g.Audit.Record(ctx, audit.Entry{
				Type:        domain.EventAccessDenied,
				Description: "Client temporarily blocked after repeated authentication failures",
				Details:     fmt.Sprintf("ip=%s retry_after=%ds", ip, retrySeconds(remaining)),
				Outcome:     domain.OutcomeThrottled,
			})
			w.Header().Set(RetryAfterHeader, strconv.Itoa(retrySeconds(remaining)))
			httpx.ErrThrottled.WriteError(w)
			return
		}
	}

	// Bucket.
	bucket := g.Limiter.Resolve(p.Tier, ip)
	cost := g.Limiter.Cost(p.Tier, ip)
	remaining := g.Limiter.Consume(bucket, cost)
	if remaining == ratelimit.Denied {
		wait := g.Limiter.RetryAfter(bucket, cost)
		g.Audit.Record(ctx, audit.Entry{
			Type:        domain.EventAccessDenied,
			Description: "Rate limit exceeded",
			Details:     fmt.Sprintf("tier=%s cost=%d retry_after=%ds", p.Tier, cost, retrySeconds(wait)),
			Outcome:     domain.OutcomeRateLimited,
		})
		w.Header().Set(RateLimitRemainingHeader, "0")
		w.Header().Set(RetryAfterHeader, strconv.Itoa(retrySeconds(wait)))
		httpx.ErrRateLimited.WriteError(w)
		return
	}
	w.Header().Set(RateLimitRemainingHeader, strconv.Itoa(remaining))

	// Credentials. Unprotected routes still carry a valid identity when
	// one is presented.
	if token, ok := g.Tokens.ExtractFromTransport(r); ok {
		if subject, roles, valid := g.Tokens.Validate(token); valid {
			ctx = httpx.ContextWithIdentity(ctx, httpx.Identity{Subject: subject, Roles: roles})
			r = r.WithContext(ctx)
		}
	}
	id, authenticated := httpx.IdentityFromContext(ctx)
	if p.Protected && !authenticated {
		httpx.ErrUnauthorized.WriteError(w)
		return
	}
	if len(p.Roles) > 0 && !id.HasAnyRole(p.Roles...) {
		g.Audit.Record(ctx, audit.Entry{
			Type:        domain.EventAccessDenied,
			Description: "Insufficient role",
			Details:     fmt.Sprintf("path=%s", r.URL.Path),
			Outcome:     domain.OutcomeDenied,
		})
		httpx.ErrForbidden.WriteError(w)
		return
	}

	g.dispatch(p, h, ip, &statusWriter{ResponseWriter: w}, r)
}

func (g *Gate) dispatch(p Policy, h HandlerFunc, ip string, w *statusWriter, r *http.Request) {
	ctx := r.Context()

	var (
		out      Outcome
		finished bool
	)
	defer func() {
		if finished {
			return
		}
		rec := recover()

		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetExtra("panic", rec)
			scope.SetExtra("path", r.URL.Path)
			scope.SetExtra("stack", string(debug.Stack()))
			sentry.CaptureMessage("panic in guarded handler")
		})
		slogx.FromContext(ctx).Error("panic recovered",
			slog.String("path", r.URL.Path),
			slog.Any("panic", rec),
		)

		g.Audit.Record(ctx, audit.Entry{
			Type:        domain.EventSystemException,
			Description: "Unhandled failure in request handler",
			Details:     fmt.Sprintf("path=%s", r.URL.Path),
			Outcome:     domain.OutcomeException,
		})
		if !w.wrote {
			httpx.ErrInternal.WriteError(w)
		}
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
	}()

	out = h(w, r)
	finished = true

	if p.AuthEndpoint {
		if out.AuthFailure {
			if g.Limiter.RecordFailure(ip) {
				slogx.FromContext(ctx).Warn("client throttled", slog.String("ip", ip))
			}
		} else if w.status < http.StatusBadRequest {
			g.Limiter.RecordSuccess(ip)
		}
	}

	event := out.Event
	if event == "" {
		event = p.Event
	}
	if event == "" {
		return
	}
	result := out.Result
	if result == "" {
		result = domain.OutcomeSuccess
		if out.AuthFailure || w.status >= http.StatusBadRequest {
			result = domain.OutcomeFailure
		}
	}
	g.Audit.Record(ctx, audit.Entry{
		Type:        event,
		Principal:   out.Principal,
		Description: out.Description,
		Details:     out.Details,
		Outcome:     result,
	})
}

func retrySeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	return int(math.Ceil(d.Seconds()))
}

// statusWriter records the status without buffering the body.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.status = http.StatusOK
		w.wrote = true
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
