package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// Client talks to one gatekeeper deployment. It is safe for concurrent use
// but holds a single identity in its cookie jar.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	base *url.URL
}

// NewClient builds a client for baseURL. httpClient may be nil; a client
// without a cookie jar gets one.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	baseURL = strings.TrimSuffix(baseURL, "/")
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient.Jar = jar
	}

	return &Client{BaseURL: baseURL, HTTPClient: httpClient, base: base}, nil
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// do sends body as JSON and decodes a 2xx response into target, which may
// be nil.
func (c *Client) do(ctx context.Context, method, path string, body, target any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if err := parseErrorResponse(resp, raw); err != nil {
		return err
	}
	if target == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) Register(ctx context.Context, email, password string) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodPost, "/register", CredentialsRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login stores the issued credential cookies in the jar.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, "/login", CredentialsRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh rotates the refresh cookie and replaces the access cookie.
func (c *Client) Refresh(ctx context.Context) (*TokenResponse, error) {
	var out TokenResponse
	if err := c.do(ctx, http.MethodPost, httpx.RefreshCookiePath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (*UserResponse, error) {
	var out UserResponse
	if err := c.do(ctx, http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, http.MethodPost, "/me/password", ChangePasswordRequest{CurrentPassword: current, NewPassword: next}, nil)
}

func (c *Client) LinkProvider(ctx context.Context, provider, externalID string) (*UserResponse, error) {
	var out UserResponse
	path := "/me/providers/" + url.PathEscape(provider)
	if err := c.do(ctx, http.MethodPost, path, LinkProviderRequest{ExternalID: externalID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditFilter selects one of the audit query endpoints. At most one of
// Principal, Type, Search or the From/To range is honoured, in that order.
type AuditFilter struct {
	Principal string
	Type      string
	Search    string
	From, To  time.Time
	Page      int
	Size      int
}

func (f AuditFilter) path() string {
	q := url.Values{}
	if f.Page > 0 {
		q.Set("page", strconv.Itoa(f.Page))
	}
	if f.Size > 0 {
		q.Set("size", strconv.Itoa(f.Size))
	}

	path := "/admin/audit"
	switch {
	case f.Principal != "":
		path += "/principal/" + url.PathEscape(f.Principal)
	case f.Type != "":
		path += "/type/" + url.PathEscape(f.Type)
	case f.Search != "":
		path += "/search"
		q.Set("q", f.Search)
	case !f.From.IsZero() || !f.To.IsZero():
		path += "/range"
		q.Set("from", f.From.Format(time.RFC3339))
		q.Set("to", f.To.Format(time.RFC3339))
	}
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	return path
}

func (c *Client) AuditEvents(ctx context.Context, f AuditFilter) (*AuditPageResponse, error) {
	var out AuditPageResponse
	if err := c.do(ctx, http.MethodGet, f.path(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Livez(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.do(ctx, http.MethodGet, "/livez", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Readyz returns the health body even when the service reports 503.
func (c *Client) Readyz(ctx context.Context) (*HealthResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/readyz"), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Cookie returns the jar's value for the named credential cookie as it
// would be sent to path.
func (c *Client) Cookie(name, path string) string {
	u := *c.base
	u.Path = path
	for _, ck := range c.HTTPClient.Jar.Cookies(&u) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
