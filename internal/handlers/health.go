package handlers

import (
	"context"
	"net/http"
	"time"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass", "fail" or "skip"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

func runCheck(ctx context.Context, p pinger) Check {
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health reports store and Redis reachability. Redis is optional; when it is
// not configured its check is skipped rather than failed.
func (h *Handler) Health(instance string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		checks := make(map[string]Check)
		allHealthy := true

		if h.db != nil {
			checks[h.driver] = runCheck(ctx, h.db)
		} else {
			checks[h.driver] = Check{Status: "fail", Message: "not configured"}
		}
		if checks[h.driver].Status != "pass" {
			allHealthy = false
		}

		if h.redis != nil {
			checks["redis"] = runCheck(ctx, h.redis)
			if checks["redis"].Status != "pass" {
				allHealthy = false
			}
		} else {
			checks["redis"] = Check{Status: "skip", Message: "not configured"}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if !allHealthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.JSON(w, statusCode, HealthResponse{
			Status:    status,
			Version:   version,
			Instance:  instance,
			Checks:    checks,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// RootResponse represents the API info response.
type RootResponse struct {
	Name    string   `json:"name"`
	Version string   `json:"version"`
	Routes  []string `json:"routes"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "chatmood",
		Version: version,
		Routes:  []string{"/health", "/metrics", "/analyses", "/analyses/stats"},
	})
}
