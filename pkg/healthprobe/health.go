// Package healthprobe provides liveness and readiness HTTP handlers.
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
	session   atomic.Value // string
}

// New creates a HealthChecker.
func New() *HealthChecker {
	h := &HealthChecker{startTime: time.Now()}
	h.session.Store("")
	return h
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// SetSession records the market session state for reporting.
func (h *HealthChecker) SetSession(state string) {
	h.session.Store(state)
}

// HealthResponse is the probe payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Uptime  string `json:"uptime"`
	Session string `json:"session,omitempty"`
	Message string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks; it answers 200
// whenever the process runs.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.write(w, http.StatusOK, HealthResponse{
			Status:  "healthy",
			Uptime:  time.Since(h.startTime).String(),
			Session: h.session.Load().(string),
		})
	}
}

// Ready returns an HTTP handler for readiness checks: 200 once the
// scheduler is wired, 503 while starting.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.ready.Load() {
			h.write(w, http.StatusServiceUnavailable, HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}
		h.write(w, http.StatusOK, HealthResponse{
			Status:  "ready",
			Uptime:  time.Since(h.startTime).String(),
			Session: h.session.Load().(string),
		})
	}
}

func (h *HealthChecker) write(w http.ResponseWriter, code int, resp HealthResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
