// Package api exposes the claim-preparation and reward-registration HTTP
// surface, plus health and metrics endpoints.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	logger "log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/claimgate/claimgate/internal/claims/prepare"
)

// HealthChecker reports readiness of one dependency.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Server is the HTTP front end.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer wires the router. checkers are probed by /healthz under the
// given names.
func NewServer(port int, svc *prepare.Service, checkers map[string]HealthChecker) *Server {
	s := &Server{
		log: logger.Default(),
	}

	h := &handlers{svc: svc, checkers: checkers, log: s.log}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/claims/prepare", h.prepareClaim)
		r.Post("/rewards", h.registerRewards)
	})

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Info("http server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server failed", "error", err)
		}
	}()
}

// Stop drains in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
