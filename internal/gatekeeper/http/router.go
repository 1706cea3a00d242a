package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/audit"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/ratelimit"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	gate         *gate.Gate
	cookies      httpx.CookieConfig
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	Database        Pinger
	RefreshStore    Pinger
	TokenService    *service.TokenService
	RefreshService  *service.RefreshService
	IdentityService *service.IdentityService
	AuditReader     *audit.Reader

	// TrustedProxies restricts whose forwarding headers name the client.
	// Nil trusts every peer.
	TrustedProxies *httpx.TrustedProxies
}

func NewRouter(g *gate.Gate, cookies httpx.CookieConfig, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		gate:         g,
		cookies:      cookies,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
		r.requestInfo,
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerAccount()
	r.registerAudit()
	r.registerSystem()
}

func (r *Router) requestInfo(next http.Handler) http.Handler {
	return httpx.RequestInfoMiddleware(r.TrustedProxies)(next)
}

// ServeHTTP implements http.Handler for Router and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{
		Identity: r.IdentityService,
		Tokens:   r.TokenService,
		Refresh:  r.RefreshService,
		Cookies:  r.cookies,
	}

	r.Mux.Handle("POST /register", r.gate.Guard(gate.Policy{
		Tier:  ratelimit.TierAuth,
		Event: domain.EventRegister,
	}, h.HandleRegister))

	// Password checks feed the IP throttle.
	r.Mux.Handle("POST /login", r.gate.Guard(gate.Policy{
		Tier:         ratelimit.TierAuth,
		AuthEndpoint: true,
		Event:        domain.EventLoginSuccess,
	}, h.HandleLogin))

	r.Mux.Handle("POST "+httpx.RefreshCookiePath, r.gate.Guard(gate.Policy{
		Tier:         ratelimit.TierAuth,
		AuthEndpoint: true,
		Event:        domain.EventTokenRefresh,
	}, h.HandleRefresh))

	r.Mux.Handle("POST /logout", r.gate.Guard(gate.Policy{
		Tier:      ratelimit.TierDefault,
		Protected: true,
		Event:     domain.EventLogout,
	}, h.HandleLogout))
}

func (r *Router) registerAccount() {
	h := &AccountHandler{
		Identity: r.IdentityService,
		Refresh:  r.RefreshService,
		Cookies:  r.cookies,
	}

	r.Mux.Handle("GET /me", r.gate.Guard(gate.Policy{
		Tier:      ratelimit.TierDefault,
		Protected: true,
	}, h.HandleMe))

	r.Mux.Handle("POST /me/password", r.gate.Guard(gate.Policy{
		Tier:         ratelimit.TierSensitive,
		AuthEndpoint: true,
		Protected:    true,
		Event:        domain.EventPasswordChange,
	}, h.HandleChangePassword))

	r.Mux.Handle("POST /me/providers/{provider}", r.gate.Guard(gate.Policy{
		Tier:      ratelimit.TierDefault,
		Protected: true,
		Event:     domain.EventProviderLink,
	}, h.HandleLinkProvider))
}

func (r *Router) registerAudit() {
	h := &AuditHandler{Reader: r.AuditReader}

	policy := gate.Policy{
		Tier:      ratelimit.TierSensitive,
		Protected: true,
		Roles:     domain.AuditReaderRoles,
		Event:     domain.EventAuditQuery,
	}

	r.Mux.Handle("GET /admin/audit", r.gate.Guard(policy, h.HandleList))
	r.Mux.Handle("GET /admin/audit/principal/{principal}", r.gate.Guard(policy, h.HandleByPrincipal))
	r.Mux.Handle("GET /admin/audit/type/{type}", r.gate.Guard(policy, h.HandleByType))
	r.Mux.Handle("GET /admin/audit/range", r.gate.Guard(policy, h.HandleByRange))
	r.Mux.Handle("GET /admin/audit/search", r.gate.Guard(policy, h.HandleSearch))
}

func (r *Router) registerSystem() {
	// Monitoring polls frequently; default tier, no audit.
	policy := gate.Policy{Tier: ratelimit.TierDefault}

	r.Mux.Handle("GET /livez", r.gate.Guard(policy, LivezHandler(r.startTime, r.buildVersion)))
	r.Mux.Handle("GET /readyz", r.gate.Guard(policy, ReadyzHandler(r.startTime, r.buildVersion, r.Database, r.RefreshStore)))
}
