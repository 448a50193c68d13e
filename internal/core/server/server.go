package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agrisense/irrigation-advisor/internal/api"
	"github.com/agrisense/irrigation-advisor/internal/core/config"
	"github.com/agrisense/irrigation-advisor/internal/core/health"
	middleware "github.com/agrisense/irrigation-advisor/internal/core/middleware"
)

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, a *api.API, ready http.HandlerFunc) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", ready)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/blocks/{blockID}/recommendations:compute", a.Compute)
		r.Get("/blocks/{blockID}/recommendations", a.Latest)
		r.Post("/scenarios:simulate", a.Simulate)

		r.Post("/webhooks", a.CreateWebhook)
		r.Get("/webhooks", a.ListWebhooks)
		r.Post("/webhooks/test", a.TestWebhook)
		r.Delete("/webhooks/{id}", a.DeleteWebhook)
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
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
