package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/marcusai/insights-backend/api/responses"
	"github.com/marcusai/insights-backend/pkg/config"
	"github.com/marcusai/insights-backend/pkg/logger"
)

const readinessProbeTimeout = 3 * time.Second

// Pinger is the health check surface shared by the infra clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Marcus-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every wired dependency. Optional dependencies that were
// never configured arrive as nil and are reported as skipped rather than
// failing readiness.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Marcus-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessProbeTimeout)
		defer cancel()

		ready := true
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if dep == nil {
				checks[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				ready = false
				checks[name] = "unreachable"
				if logg != nil {
					probeCtx := logg.WithFields(r.Context(), map[string]any{"dependency": name})
					logg.Error(probeCtx, "readiness probe failed", err)
				}
				continue
			}
			checks[name] = "ok"
		}

		payload := map[string]any{"status": "ready", "checks": checks}
		if !ready {
			payload["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, payload)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
