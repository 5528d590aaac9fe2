package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/keydrop/keydrop-backend/api/responses"
	"github.com/keydrop/keydrop-backend/pkg/config"
	"github.com/keydrop/keydrop-backend/pkg/db"
	"github.com/keydrop/keydrop-backend/pkg/logger"
	"github.com/keydrop/keydrop-backend/pkg/redis"
)

const envHeader = "X-Keydrop-Env"

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings the datastores. Any failure degrades the whole check so
// the load balancer stops routing before requests start erroring.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(envHeader, cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		components := map[string]string{
			"database": pingStatus(ctx, dbP),
			"redis":    pingStatus(ctx, redisP),
		}
		for _, status := range components {
			if status != "ok" {
				if logg != nil {
					logg.Warn(r.Context(), "readiness check degraded")
				}
				responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, components)
				return
			}
		}
		responses.WriteSuccess(w, components)
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

func pingStatus(ctx context.Context, p pinger) string {
	if p == nil {
		return "not configured"
	}
	if err := p.Ping(ctx); err != nil {
		return "unreachable"
	}
	return "ok"
}
