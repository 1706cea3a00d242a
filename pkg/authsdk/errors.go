package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// parseErrorResponse turns a non-2xx response into *httpx.APIError. Bodies
// that are not a denial body keep the status and the status text.
func parseErrorResponse(resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var apiErr httpx.APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
		apiErr.Status = resp.StatusCode
		return &apiErr
	}

	return &httpx.APIError{
		Status:  resp.StatusCode,
		Message: http.StatusText(resp.StatusCode),
		Details: fmt.Sprintf("HTTP %d", resp.StatusCode),
	}
}

// IsStatus reports whether err is a denial with the given HTTP status.
func IsStatus(err error, status int) bool {
	var apiErr *httpx.APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
