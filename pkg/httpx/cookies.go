package httpx

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	AccessCookieName  = "jwt"
	RefreshCookieName = "refresh_token"

	// RefreshCookiePath scopes the refresh cookie to the rotation endpoint.
	RefreshCookiePath = "/refresh-token"
)

// CookieConfig controls the attributes applied to credential cookies.
type CookieConfig struct {
	Secure      bool
	SameSite    http.SameSite
	Partitioned bool
}

// ParseSameSite maps "lax", "strict" or "none" to http.SameSite.
func ParseSameSite(s string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lax":
		return http.SameSiteLaxMode, nil
	case "strict":
		return http.SameSiteStrictMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	default:
		return 0, fmt.Errorf("unknown SameSite mode %q", s)
	}
}

func (c CookieConfig) cookie(name, value, path string, maxAge time.Duration) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: c.SameSite,
	}
	if c.SameSite == http.SameSiteNoneMode {
		// Browsers reject SameSite=None without Secure.
		ck.Secure = true
		ck.Partitioned = c.Partitioned
	}
	if maxAge > 0 {
		ck.MaxAge = int(maxAge.Seconds())
	} else if maxAge < 0 {
		ck.MaxAge = -1
	}
	return ck
}

// AccessCookie carries the short-lived signed access token.
func (c CookieConfig) AccessCookie(token string, ttl time.Duration) *http.Cookie {
	return c.cookie(AccessCookieName, token, "/", ttl)
}

// RefreshCookie carries the opaque refresh secret.
func (c CookieConfig) RefreshCookie(secret string, ttl time.Duration) *http.Cookie {
	return c.cookie(RefreshCookieName, secret, RefreshCookiePath, ttl)
}

// SetCredentials writes both credential cookies.
func (c CookieConfig) SetCredentials(w http.ResponseWriter, access string, accessTTL time.Duration, refresh string, refreshTTL time.Duration) {
	http.SetCookie(w, c.AccessCookie(access, accessTTL))
	http.SetCookie(w, c.RefreshCookie(refresh, refreshTTL))
}

// ClearCredentials expires both credential cookies on the client.
func (c CookieConfig) ClearCredentials(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(AccessCookieName, "", "/", -1))
	http.SetCookie(w, c.cookie(RefreshCookieName, "", RefreshCookiePath, -1))
}
