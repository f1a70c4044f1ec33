package controllers

import (
	"net/http"

	"github.com/adeyemio/tradefair-backend/api/responses"
	"github.com/adeyemio/tradefair-backend/pkg/config"
	"github.com/adeyemio/tradefair-backend/pkg/db"
	pkgerrors "github.com/adeyemio/tradefair-backend/pkg/errors"
	"github.com/adeyemio/tradefair-backend/pkg/logger"
	"github.com/adeyemio/tradefair-backend/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TradeFair-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports ready only when the database and redis respond.
func HealthReady(cfg *config.Config, dbP db.Pinger, redisP redis.Pinger, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-TradeFair-Env", cfg.App.Env)

		if dbP != nil {
			if err := dbP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "database unavailable"))
				return
			}
		}
		if redisP != nil {
			if err := redisP.Ping(r.Context()); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "redis unavailable"))
				return
			}
		}

		responses.WriteSuccess(w, map[string]string{"status": "ready"})
	}
}
