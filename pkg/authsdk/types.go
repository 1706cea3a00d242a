package authsdk

import "time"

// CredentialsRequest is the body of POST /register and POST /login.
type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse echoes the access token set in the jwt cookie.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`

	// ExpiresIn is the access token lifetime in seconds.
	ExpiresIn int `json:"expires_in"`
}

// UserResponse is the public view of an account.
type UserResponse struct {
	ID        string            `json:"id"`
	Email     string            `json:"email"`
	Roles     []string          `json:"roles"`
	Providers map[string]string `json:"providers,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ChangePasswordRequest is the body of POST /me/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// LinkProviderRequest is the body of POST /me/providers/{provider}.
type LinkProviderRequest struct {
	ExternalID string `json:"external_id"`
}

// AuditEventResponse is one audit record. Verified reports whether its
// signature still matches its contents.
type AuditEventResponse struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	Principal   string    `json:"principal"`
	Description string    `json:"description,omitempty"`
	Details     string    `json:"details,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	IPAddress   string    `json:"ip_address,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	Source      string    `json:"source,omitempty"`
	Outcome     string    `json:"outcome"`
	Verified    bool      `json:"verified"`
}

// AuditPageResponse is one page of audit records, newest first.
type AuditPageResponse struct {
	Events []AuditEventResponse `json:"events"`
	Total  int                  `json:"total"`
	Page   int                  `json:"page"`
	Size   int                  `json:"size"`
}

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database     string `json:"database"`
	RefreshStore string `json:"refresh_store"`
}
