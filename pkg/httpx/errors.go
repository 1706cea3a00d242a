package httpx

import (
	"fmt"
	"net/http"
)

// APIError is the body of every denial: a human readable message, a hint,
// and the numeric status. It never carries internal error text.
type APIError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Message, e.Details)
}

// WithDetails returns a copy of e with a different hint.
func (e *APIError) WithDetails(details string) *APIError {
	c := *e
	c.Details = details
	return &c
}

// WriteError writes e as JSON. 401s also carry a Bearer challenge.
func (e *APIError) WriteError(w http.ResponseWriter) {
	if e.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="gatekeeper"`)
	}
	WriteJSON(w, e.Status, e)
}

var (
	ErrBadRequest = &APIError{
		Status:  http.StatusBadRequest,
		Message: "Bad request",
		Details: "the request is malformed or missing required fields",
	}
	ErrUnauthorized = &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Unauthorized",
		Details: "a valid access token is required",
	}
	ErrInvalidCredentials = &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Invalid credentials",
		Details: "email or password is incorrect",
	}
	ErrInvalidRefresh = &APIError{
		Status:  http.StatusUnauthorized,
		Message: "Invalid refresh token",
		Details: "the refresh token is unknown or expired, log in again",
	}
	ErrForbidden = &APIError{
		Status:  http.StatusForbidden,
		Message: "Forbidden",
		Details: "you do not have permission to access this resource",
	}
	ErrNotFound = &APIError{
		Status:  http.StatusNotFound,
		Message: "Not found",
		Details: "the requested resource does not exist",
	}
	ErrConflict = &APIError{
		Status:  http.StatusConflict,
		Message: "Conflict",
		Details: "the resource already exists",
	}
	ErrRateLimited = &APIError{
		Status:  http.StatusTooManyRequests,
		Message: "Too many requests",
		Details: "rate limit exceeded, retry later",
	}
	ErrThrottled = &APIError{
		Status:  http.StatusTooManyRequests,
		Message: "Too many failed attempts",
		Details: "this address is temporarily blocked after repeated authentication failures",
	}
	ErrInternal = &APIError{
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Details: "an unexpected error occurred",
	}
)
