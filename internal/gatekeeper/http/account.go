package http

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/domain"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/service"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
	"github.com/aussiebroadwan/gatekeeper/pkg/slogx"
)

// AccountHandler serves the authenticated caller's own account.
type AccountHandler struct {
	Identity *service.IdentityService
	Refresh  *service.RefreshService
	Cookies  httpx.CookieConfig
}

func (h *AccountHandler) HandleMe(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	user, err := h.Identity.GetBySubject(ctx, id.Subject)
	if err != nil {
		if errors.Is(err, service.ErrUserNotFound) {
			httpx.ErrNotFound.WithDetails("the account behind this token no longer exists").WriteError(w)
			return gate.Outcome{Description: "Account not found"}
		}
		slogx.FromContext(ctx).Error("failed to load user", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Result: domain.OutcomeException, Description: "Account lookup failed"}
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
	return gate.Outcome{Description: "Account viewed"}
}

// HandleChangePassword requires the current password. Success revokes the
// refresh credential so other sessions must log in again.
func (h *AccountHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	log := slogx.FromContext(ctx)
	id, _ := httpx.IdentityFromContext(ctx)

	var req authsdk.ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrBadRequest.WriteError(w)
		return gate.Outcome{Description: "Malformed password change request"}
	}

	if err := h.Identity.ChangePassword(ctx, id.Subject, req.CurrentPassword, req.NewPassword); err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			httpx.ErrInvalidCredentials.WithDetails("current password is incorrect").WriteError(w)
			return gate.Outcome{Description: "Current password rejected", AuthFailure: true}
		case errors.Is(err, service.ErrWeakPassword):
			httpx.ErrBadRequest.WithDetails("password must be between 8 and 128 characters").WriteError(w)
			return gate.Outcome{Description: "New password rejected"}
		}
		log.Error("failed to change password", slogx.Err(err))
		httpx.ErrInternal.WriteError(w)
		return gate.Outcome{Result: domain.OutcomeException, Description: "Password change failed"}
	}

	if err := h.Refresh.Revoke(ctx, id.Subject); err != nil {
		log.Error("failed to revoke refresh token after password change", slogx.Err(err))
	}
	h.Cookies.ClearCredentials(w)
	w.WriteHeader(http.StatusNoContent)
	return gate.Outcome{Description: "Password changed"}
}

func (h *AccountHandler) HandleLinkProvider(w http.ResponseWriter, r *http.Request) gate.Outcome {
	ctx := r.Context()
	id, _ := httpx.IdentityFromContext(ctx)

	provider, err := domain.ParseProvider(r.PathValue("provider"))
	if err != nil {
		httpx.ErrBadRequest.WithDetails("provider must be one of GOOGLE, SPOTIFY, APPLE, SOUNDCLOUD").WriteError(w)
		return gate.Outcome{Description: "Unknown provider"}
	}
	details := fmt.Sprintf("provider=%s", provider)

	var req authsdk.LinkProviderRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.ErrBadRequest.WriteError(w)
		return gate.Outcome{Description: "Malformed provider link request", Details: details}
	}

	user, err := h.Identity.LinkProvider(ctx, id.Subject, provider, req.ExternalID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidProviderID):
			httpx.ErrBadRequest.WithDetails("external_id is required").WriteError(w)
		case errors.Is(err, service.ErrProviderTaken):
			httpx.ErrConflict.WithDetails("this provider account is linked to another user").WriteError(w)
		case errors.Is(err, service.ErrUserNotFound):
			httpx.ErrNotFound.WithDetails("the account behind this token no longer exists").WriteError(w)
		default:
			slogx.FromContext(ctx).Error("failed to link provider", slogx.Err(err))
			httpx.ErrInternal.WriteError(w)
			return gate.Outcome{Result: domain.OutcomeException, Description: "Provider link failed", Details: details}
		}
		return gate.Outcome{Description: "Provider link rejected", Details: details}
	}

	httpx.WriteJSON(w, http.StatusOK, userResponse(user))
	return gate.Outcome{Description: "Provider linked", Details: details}
}
