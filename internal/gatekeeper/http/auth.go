package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// AuthHandler serves registration and the credential lifecycle.
type AuthHandler struct {
	Identity *service.IdentityService
	Tokens   *service.TokenService
	Refresh  *service.RefreshService
	Cookies  httpx.CookieConfig
}

// HandleRegister creates a USER account. It does not log the caller in.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()

	var req authsdk.CredentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrBadRequest.WriteError(w)
		return gate.Outcome{Description: "Malformed registration request"}
	}

	user, err := h.Identity.Register(ctx, req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidEmail):
			httpx.ErrBadRequest.WithDetails("email is not a valid address").WriteError(w)
		case errors.Is(err, service.ErrWeakPassword):
			httpx.ErrBadRequest.WithDetails("password must be between 8 and 128 characters").WriteError(w)
		case errors.Is(err, service.ErrUserExists):
			httpx.ErrConflict.WithDetails("an account with this email already exists").WriteError(w)
		default:
			slogx.FromContext(ctx).Error("failed to register user", slogx.Err(err))
			httpx.ErrInternal.WriteError(w)
			return gate.Outcome{Principal: req.Email, Result: domain.OutcomeException, Description: "Registration failed"}
		}
		return gate.Outcome{Principal: req.Email, Description: "Registration rejected"}
	}

	httpx.WriteJSON(w, http.StatusCreated, userResponse(user))
	return gate.Outcome{Principal: user.Email, Description: "Account registered"}
}

// HandleLogin checks a password and issues access and refresh cookies.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	var req authsdk.CredentialsRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrBadRequest.WriteError(w)
		return gate.Outcome{Event: domain.EventLoginFailure, Description: "Malformed login request"}
	}
	principal := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.Identity.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			httpx.ErrInvalidCredentials.WriteError(w)
			return gate.Outcome{
				Event:       domain.EventLoginFailure,
				Principal:   principal,
				Description: "Invalid email or password",
				AuthFailure: true,
			}
		}
		log.Error("failed to authenticate user", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Event: domain.EventLoginFailure, Principal: principal, Result: domain.OutcomeException, Description: "Login failed"}
	}

	resp, err := h.issue(w, r, user)
	if err != nil {
		log.Error("failed to issue credentials", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Event: domain.EventLoginFailure, Principal: user.Email, Result: domain.OutcomeException, Description: "Credential issuance failed"}
	}

	httpx.WriteJSON(w, http.StatusOK, resp)
	return gate.Outcome{Event: domain.EventLoginSuccess, Principal: user.Email, Description: "Login succeeded"}
}

// HandleRefresh exchanges the refresh cookie for a new credential pair.
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	log := slogx.FromContext(ctx)

	ck, err := r.Cookie(httpx.RefreshCookieName)
	if err != nil || ck.Value == "" {
		httpx.ErrInvalidRefresh.WithDetails("no refresh token was presented").WriteError(w)
		return gate.Outcome{Result: domain.OutcomeFailure, Description: "Missing refresh token"}
	}

	rotated, err := h.Refresh.Rotate(ctx, ck.Value)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrRefreshExpired):
			h.Cookies.ClearCredentials(w)
			httpx.ErrInvalidRefresh.WriteError(w)
			return gate.Outcome{Description: "Expired refresh token", AuthFailure: true}
		case errors.Is(err, service.ErrRefreshUnknown):
			h.Cookies.ClearCredentials(w)
			httpx.ErrInvalidRefresh.WriteError(w)
			return gate.Outcome{Description: "Unknown refresh token", AuthFailure: true}
		}
		log.Error("failed to rotate refresh token", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Result: domain.OutcomeException, Description: "Refresh failed"}
	}

	user, err := h.Identity.GetBySubject(ctx, rotated.Subject)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			_ = h.Refresh.Revoke(ctx, rotated.Subject)
			h.Cookies.ClearCredentials(w)
			httpx.ErrInvalidRefresh.WriteError(w)
			return gate.Outcome{Principal: rotated.Subject, Description: "Account no longer exists", AuthFailure: true}
		}
		log.Error("failed to load user for refresh", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Principal: rotated.Subject, Result: domain.OutcomeException, Description: "Refresh failed"}
	}

	access, err := h.Tokens.Generate(user.Email, user.Roles)
	if err != nil {
		log.Error("failed to sign access token", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Principal: user.Email, Result: domain.OutcomeException, Description: "Refresh failed"}
	}

	h.Cookies.SetCredentials(w, access, h.Tokens.AccessTTL, rotated.Secret, h.Refresh.Lifetime())
	httpx.WriteJSON(w, http.StatusOK, h.tokenResponse(access))
	return gate.Outcome{Principal: user.Email, Description: "Refresh token rotated"}
}

// HandleLogout revokes the caller's refresh credential and clears both
// cookies.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	if err := h.Refresh.Revoke(ctx, id.Subject); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke refresh token", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Result: domain.OutcomeException, Description: "Logout failed"}
	}

	h.Cookies.ClearCredentials(w)
	w.WriteHeader(http.StatusNoContent)
	return gate.Outcome{Description: "Logged out"}
}

// issue signs an access token, replaces the subject's refresh credential and
// sets both cookies.
func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, user domain.User) (authsdk.TokenResponse, error) {
	access, err := h.Tokens.Generate(user.Email, user.Roles)
	if err != nil {
		return authsdk.TokenResponse{}, err
	}
	refresh, err := h.Refresh.Issue(r.Context(), user.Email)
	if err != nil {
		return authsdk.TokenResponse{}, err
	}

	h.Cookies.SetCredentials(w, access, h.Tokens.AccessTTL, refresh.Secret, h.Refresh.Lifetime())
	return h.tokenResponse(access), nil
}

func (h *AuthHandler) tokenResponse(access string) authsdk.TokenResponse {
	return authsdk.TokenResponse{
		AccessToken: access,
		TokenType:   "Bearer",
		ExpiresIn:   int(h.Tokens.AccessTTL.Seconds()),
	}
}

func userResponse(u domain.User) authsdk.UserResponse {
	resp := authsdk.UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Roles:     u.Roles,
		CreatedAt: u.CreatedAt,
	}
	for _, p := range []domain.Provider{domain.ProviderGoogle, domain.ProviderSpotify, domain.ProviderApple, domain.ProviderSoundCloud} {
		if v := *p.Field(&u); v != nil {
			if resp.Providers == nil {
				resp.Providers = map[string]string{}
			}
			resp.Providers[string(p)] = *v
		}
	}
	return resp
}
