// Package opsserver runs the process's operational HTTP surface:
// liveness, readiness, and Prometheus metrics. It carries no routing or
// catchment logic of its own.
package opsserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plan4better/catchment-engine/internal/core/config"
	"github.com/plan4better/catchment-engine/internal/core/health"
	"github.com/plan4better/catchment-engine/internal/core/middleware"
	myhealth "github.com/plan4better/catchment-engine/internal/health"
)

// Run starts the ops HTTP server and blocks until ctx is cancelled or the
// listener fails. rr may be nil, in which case /readyz always reports ready.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, rr health.ReadinessReporter) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", myhealth.Liveness())
	if rr != nil {
		r.Get("/readyz", health.Readiness(rr))
	} else {
		r.Get("/readyz", myhealth.Liveness())
	}
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops http listen", "addr", cfg.MetricsAddr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
