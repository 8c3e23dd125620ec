package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/taskflow/ai-backend/utils"
	"go.uber.org/zap"
)

// HealthCheck is one dependency probed by the readiness endpoint
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// HealthResponse represents the readiness response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles liveness and readiness probes
type HealthHandler struct {
	checks  []HealthCheck
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(logger *zap.Logger, checks ...HealthCheck) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		timeout: 5 * time.Second,
		logger:  logger,
	}
}

// HandleHealth handles GET /healthz. It returns 200 while the process is running.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleReadiness handles GET /readyz by running every dependency check
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks))
	ready := true

	for _, c := range h.checks {
		if err := c.Check(ctx); err != nil {
			h.logger.Warn("readiness check failed",
				zap.String("check", c.Name),
				zap.Error(err))
			checks[c.Name] = "unhealthy"
			ready = false
			continue
		}
		checks[c.Name] = "healthy"
	}

	status := "ready"
	httpStatus := http.StatusOK
	if !ready {
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if err := utils.WriteJSON(w, httpStatus, response); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
