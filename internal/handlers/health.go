package handlers

import (
	"net/http"

	"storefront-commerce-api/internal/services"
)

// HealthHandler handles health check and configuration requests
type HealthHandler struct {
	statusService *services.StatusService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(statusService *services.StatusService) *HealthHandler {
	return &HealthHandler{
		statusService: statusService,
	}
}

// Health handles GET /health - process liveness, no upstream call
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// CommerceLayerHealth handles GET /commerce-layer/health
func (h *HealthHandler) CommerceLayerHealth(w http.ResponseWriter, r *http.Request) {
	report, err := h.statusService.HealthCheck(r.Context())
	if err != nil {
		if report == nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSONResponse(w, http.StatusServiceUnavailable, report)
		return
	}
	writeJSONResponse(w, http.StatusOK, report)
}

// Config handles GET /commerce-layer/config
func (h *HealthHandler) Config(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.statusService.GetConfig()
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, cfg)
}
