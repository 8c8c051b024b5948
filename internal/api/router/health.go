package router

import (
	"context"
	"net/http"
	"time"

	"github.com/wolfman30/medrecord-ai/internal/apperr"
	"github.com/wolfman30/medrecord-ai/pkg/logging"
)

const healthTimeout = 2 * time.Second

// HealthCheck pings one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

func healthHandler(checks []HealthCheck, logger *logging.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for _, c := range checks {
			if err := c.Check(ctx); err != nil {
				logger.Warn("health check failed", "dependency", c.Name, "error", err)
				deps[c.Name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			deps[c.Name] = "ok"
		}

		body := map[string]any{"status": "ok"}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		if len(deps) > 0 {
			body["dependencies"] = deps
		}
		apperr.WriteJSON(w, status, body)
	}
}
