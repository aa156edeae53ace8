package handlers

import (
	"context"
	"net/http"
	"time"
)

// Check tests one dependency. A nil error means healthy.
type Check func(ctx context.Context) error

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  int64             `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler returns a health check handler. Any failing check turns
// the response into a 503 with status "degraded".
func HealthHandler(version string, started time.Time, checks map[string]Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status:  "ok",
			Version: version,
			Uptime:  int64(time.Since(started).Seconds()),
		}
		status := http.StatusOK

		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			for name, check := range checks {
				if err := check(ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					status = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}

		SendJSON(w, status, resp)
	}
}
