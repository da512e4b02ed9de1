package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/nikhilbhat/subwise-backend/api/responses"
	"github.com/nikhilbhat/subwise-backend/pkg/config"
	pkgerrors "github.com/nikhilbhat/subwise-backend/pkg/errors"
	"github.com/nikhilbhat/subwise-backend/pkg/logger"
)

// Pinger is the readiness surface every backing dependency exposes.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readinessTimeout = 5 * time.Second

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subwise-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

func HealthReady(cfg *config.Config, logg *logger.Logger, dbP, redisP Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Subwise-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := map[string]Pinger{
			"database": dbP,
			"redis":    redisP,
		}
		for name, p := range checks {
			if p == nil {
				continue
			}
			if err := p.Ping(ctx); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, name+" unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
