package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"flood-platform/internal/sim"
	"flood-platform/pkg/logging"
)

// StatusHandler exposes the simulation run state over the monitoring
// server.
type StatusHandler struct {
	manager *sim.Manager
	logger  *logging.StructuredLogger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(manager *sim.Manager, logger *logging.StructuredLogger) *StatusHandler {
	return &StatusHandler{
		manager: manager,
		logger:  logger,
	}
}

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

// GetStatus handles GET /api/v1/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.manager.Snapshot(), http.StatusOK)
}

// GetBoundaries handles GET /api/v1/boundaries
func (h *StatusHandler) GetBoundaries(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, h.manager.Snapshot().Boundaries, http.StatusOK)
}

// HealthCheck handles GET /health
func (h *StatusHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	status := map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	h.logger.Debug(ctx, "[HEALTH_CHECK] Health check requested", logging.Fields{})
	h.sendJSON(w, status, http.StatusOK)
}

// sendJSON sends a JSON response
func (h *StatusHandler) sendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// RegisterRoutes registers all monitoring routes
func (h *StatusHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/status", h.GetStatus).Methods("GET")
	router.HandleFunc("/api/v1/boundaries", h.GetBoundaries).Methods("GET")
	router.HandleFunc("/health", h.HealthCheck).Methods("GET")
}
