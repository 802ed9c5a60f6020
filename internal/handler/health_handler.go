package handler

import (
	"net/http"
	"time"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status   string         `json:"status"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Upstream reports whether the CRM API is currently reachable
type Upstream interface {
	Available() bool
}

// SubscriberCounter reports live feed subscribers
type SubscriberCounter interface {
	ClientCount(topic string) int
}

// Ready reports not_ready while the CRM API circuit is open
func Ready(upstream Upstream, feed SubscriberCounter, topic string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		api := HealthCheckResult{Status: "up"}
		if !upstream.Available() {
			api = HealthCheckResult{Status: "down", Error: "circuit open"}
		}

		checks := map[string]HealthCheckResult{"crm_api": api}
		if feed != nil {
			checks["live_feed"] = HealthCheckResult{
				Status:   "up",
				Metadata: map[string]any{"subscribers": feed.ClientCount(topic)},
			}
		}

		status, code := "ready", http.StatusOK
		if api.Status != "up" {
			status, code = "not_ready", http.StatusServiceUnavailable
		}

		writeJSON(w, code, map[string]any{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    checks,
		})
	}
}
