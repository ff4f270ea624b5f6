// Package healthprobe implements the liveness and readiness handlers
// served by both pipeline processes. Liveness is unconditional;
// readiness flips once the process has connected its stores and
// transports, and flips back at the start of shutdown.
package healthprobe

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks.
type HealthChecker struct {
	startTime time.Time
	ready     atomic.Bool
}

// New creates a new HealthChecker in the not-ready state.
func New() *HealthChecker {
	return &HealthChecker{
		startTime: time.Now(),
	}
}

// SetReady marks the process as ready (or not) to serve its pipeline role.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// ProbeResponse is the JSON body of both probe endpoints.
type ProbeResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Message string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK while the process is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeProbe(w, http.StatusOK, ProbeResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK when ready, 503 Service Unavailable otherwise.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			h.writeProbe(w, http.StatusServiceUnavailable, ProbeResponse{
				Status:  "not_ready",
				Message: "process is starting or shutting down",
			})
			return
		}

		h.writeProbe(w, http.StatusOK, ProbeResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		})
	}
}

func (h *HealthChecker) writeProbe(w http.ResponseWriter, status int, resp ProbeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
