package handler

import (
	"context"
	"net/http"
	"time"

	"imageduel/pkg/logger"
)

// Pinger is anything that can report its own health
type Pinger interface {
	Health(ctx context.Context) error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     Pinger
	redis  Pinger
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. redis may be nil.
func NewHealthHandler(db Pinger, redis Pinger, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{db: db, redis: redis, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Service    string            `json:"service"`
	Components map[string]string `json:"components"`
}

// Check handles GET /health. The database is required; Redis is optional
// and only degrades the status.
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Service:    "imageduel",
		Components: map[string]string{"database": "ok"},
	}
	status := http.StatusOK

	if err := h.db.Health(ctx); err != nil {
		h.logger.WithError(err).Error("Database health check failed")
		response.Components["database"] = "unavailable"
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		response.Components["redis"] = "ok"
		if err := h.redis.Health(ctx); err != nil {
			h.logger.WithError(err).Warn("Redis health check failed")
			response.Components["redis"] = "unavailable"
			if response.Status == "healthy" {
				response.Status = "degraded"
			}
		}
	} else {
		response.Components["redis"] = "disabled"
	}

	respondJSON(w, status, response)
}
