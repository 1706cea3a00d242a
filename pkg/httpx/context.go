package httpx

import (
	"context"
	"net/http"
	"slices"
)

type ctxKey int

const (
	ctxKeyIdentity ctxKey = iota
	ctxKeyRequestInfo
)

// Identity is the authenticated principal attached to a request.
type Identity struct {
	Subject string
	Roles   []string
}

// HasAnyRole reports whether the identity carries at least one of roles.
func (id Identity) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if slices.Contains(id.Roles, r) {
			return true
		}
	}
	return false
}

func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok && id.Subject != ""
}

// RequestInfo is the transport metadata recorded alongside audit events.
type RequestInfo struct {
	IPAddress string
	UserAgent string
	Path      string
}

func ContextWithRequestInfo(ctx context.Context, info RequestInfo) context.Context {
	return context.WithValue(ctx, ctxKeyRequestInfo, info)
}

func RequestInfoFromContext(ctx context.Context) (RequestInfo, bool) {
	info, ok := ctx.Value(ctxKeyRequestInfo).(RequestInfo)
	return info, ok
}

// RequestInfoMiddleware captures client IP, user agent and path into the
// request context. proxies may be nil.
func RequestInfoMiddleware(proxies *TrustedProxies) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithRequestInfo(r.Context(), RequestInfo{
				IPAddress: proxies.ClientIP(r),
				UserAgent: r.UserAgent(),
				Path:      r.URL.Path,
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
