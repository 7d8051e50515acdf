package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/pantrylink/pantrylink-backend/api/responses"
	"github.com/pantrylink/pantrylink-backend/pkg/config"
	"github.com/pantrylink/pantrylink-backend/pkg/logger"
)

type pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-PantryLink-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports per-dependency status. Any failing dependency
// flips the overall answer to 503 so the load balancer stops routing.
func HealthReady(cfg *config.Config, logg *logger.Logger, db pinger, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("X-PantryLink-Env", cfg.App.Env)

		checks := map[string]string{}
		healthy := true
		for name, dep := range map[string]pinger{"postgres": db, "redis": redis} {
			if dep == nil {
				checks[name] = "not configured"
				healthy = false
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				if logg != nil {
					logg.Error(ctx, "readiness check failed: "+name, err)
				}
				checks[name] = "unreachable"
				healthy = false
				continue
			}
			checks[name] = "ok"
		}

		status := http.StatusOK
		overall := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "degraded"
		}
		responses.WriteSuccessStatus(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}
