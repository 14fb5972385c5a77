package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/neurondb/NeuronQuery/api/internal/initialization"
	"github.com/neurondb/NeuronQuery/api/internal/logging"
)

// HealthReporter runs the service health checks
type HealthReporter interface {
	CheckAll(ctx context.Context) (*initialization.HealthStatus, error)
}

// HealthHandlers serves the health endpoint
type HealthHandlers struct {
	health HealthReporter
	logger *logging.Logger
}

// NewHealthHandlers creates health handlers
func NewHealthHandlers(health HealthReporter, logger *logging.Logger) *HealthHandlers {
	return &HealthHandlers{health: health, logger: logger}
}

// Health handles GET /api/health. A degraded service still answers 200.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	status, err := h.health.CheckAll(r.Context())
	if err != nil {
		h.logger.Error("Health check failed", err, nil)
		WriteSuccess(w, map[string]interface{}{
			"status":    "unhealthy",
			"error":     err.Error(),
			"timestamp": time.Now().UTC(),
		}, http.StatusInternalServerError)
		return
	}

	WriteSuccess(w, status, http.StatusOK)
}
