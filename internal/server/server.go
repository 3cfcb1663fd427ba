// Package server wires the submission endpoint into an HTTP server.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"memberledger/internal/config"
	"memberledger/internal/membership"
	"memberledger/internal/metrics"
	"memberledger/internal/middleware"
)

// Server represents the HTTP server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	submit     *membership.Handler
	metrics    *metrics.Metrics
	logger     *zap.Logger
	cfg        *config.Config
}

// NewServer creates a new HTTP server. m may be nil when metrics are disabled.
func NewServer(cfg *config.Config, submit *membership.Handler, m *metrics.Metrics, logger *zap.Logger) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		submit:  submit,
		metrics: m,
		logger:  logger,
		cfg:     cfg,
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	chain := []func(http.Handler) http.Handler{
		middleware.Recovery(s.logger),
		middleware.RequestID,
		middleware.Logging(s.logger),
	}
	if s.metrics != nil {
		chain = append(chain, middleware.Metrics(s.metrics))
	}
	s.router.Use(chain...)

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if s.metrics != nil && s.cfg.Metrics.Enabled {
		s.router.Method(http.MethodGet, s.cfg.Metrics.Path, s.metrics.Handler())
	}

	submitChain := []func(http.Handler) http.Handler{middleware.CORS(s.cfg.CORS.AllowedOrigin)}
	if s.cfg.RateLimiter.Enabled {
		limiter := middleware.NewRateLimiter(
			s.cfg.RateLimiter.RequestsPerSecond,
			s.cfg.RateLimiter.BurstSize,
			s.metrics,
			s.logger,
		)
		submitChain = append(submitChain, limiter.Limit)
	}
	// The handler answers every method itself so that unsupported ones get
	// the JSON 405 body.
	submit := middleware.Chain(submitChain...)(http.HandlerFunc(s.submit.HandleSubmit))
	s.router.Handle("/submit", submit)
	s.router.Handle("/api/submit", submit)
}

// Handler returns the http.Handler for the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.Int("port", s.cfg.Server.Port))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
