package handlers

import (
	"net/http"
)

type healthStatus struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health reports engine liveness
// @Summary Health check
// @Description Checks storage and event bus connectivity
// @Tags system
// @Produce json
// @Success 200 {object} healthStatus "All components healthy"
// @Failure 503 {object} healthStatus "One or more components degraded"
// @Router /health [get]
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:     "ok",
		Components: map[string]string{"storage": "ok", "events": "ok"},
	}

	if err := h.storage.Health(r.Context()); err != nil {
		status.Status = "degraded"
		status.Components["storage"] = err.Error()
	}
	if err := h.bus.Health(); err != nil {
		status.Status = "degraded"
		status.Components["events"] = err.Error()
	}

	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
