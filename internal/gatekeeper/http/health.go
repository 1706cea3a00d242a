package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/gatekeeper/internal/gatekeeper/gate"
	"github.com/aussiebroadwan/gatekeeper/pkg/authsdk"
	"github.com/aussiebroadwan/gatekeeper/pkg/httpx"
)

// LivezHandler always answers 200 while the process is serving.
func LivezHandler(startTime time.Time, version string) gate.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) gate.Outcome {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
		return gate.Outcome{}
	}
}

// ReadyzHandler pings the database and the refresh store. A nil pinger is
// reported as not configured.
func ReadyzHandler(startTime time.Time, version string, db, refresh Pinger) gate.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) gate.Outcome {
		checks := &authsdk.HealthChecks{
			Database:     "ok",
			RefreshStore: "ok",
		}
		overallStatus := "ok"
		statusCode := http.StatusOK

		check := func(p Pinger, into *string) {
			if p == nil {
				*into = "not configured"
				return
			}
			if err := p.Ping(r.Context()); err != nil {
				*into = "unavailable"
				overallStatus = "degraded"
				statusCode = http.StatusServiceUnavailable
			}
		}
		check(db, &checks.Database)
		check(refresh, &checks.RefreshStore)

		httpx.WriteJSON(w, statusCode, authsdk.HealthResponse{
			Status:  overallStatus,
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		})
		return gate.Outcome{}
	}
}
