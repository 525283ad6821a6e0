package handlers

import (
	"context"
	"net/http"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	Checks  map[string]HealthCheck
	Timeout time.Duration
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Health reports liveness plus the state of every configured dependency.
// Any failing check turns the response into a 503.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	res := healthResponse{Status: "ok"}
	status := http.StatusOK
	if len(h.Checks) > 0 {
		res.Checks = make(map[string]string, len(h.Checks))
	}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}

	writeJSON(w, r, status, res)
}
