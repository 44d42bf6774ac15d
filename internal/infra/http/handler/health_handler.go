package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/vulnwarden/api/pkg/logger"
)

// HealthChecker reports the health of one dependency.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes.
type HealthHandler struct {
	checkers map[string]HealthChecker
	logger   *logger.Logger
}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler(checkers map[string]HealthChecker, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checkers: checkers,
		logger:   log.With("handler", "health"),
	}
}

// Live always answers ok while the process is up.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready checks every registered dependency.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checkers))
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			h.logger.Warn("dependency unhealthy", "dependency", name, "error", err)
			deps[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}

	respondJSON(w, status, map[string]any{
		"status":       statusWord(status),
		"dependencies": deps,
	})
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ok"
	}
	return "degraded"
}
