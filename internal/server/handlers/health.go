package handlers

import (
	"net/http"

	"github.com/pagewright/pagewright/internal/server/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	version string
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{version: version}
}

// Health reports liveness and the running version.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r, &dto.HealthResponse{Status: "ok", Version: h.version})
}
