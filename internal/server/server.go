package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"feedsentry/internal/auth"
	"feedsentry/internal/core"
)

// Server serves the routes of every enabled feature under /api
type Server struct {
	config   *core.Config
	logger   *core.Logger
	registry *core.Registry
	server   *http.Server
}

// New builds the router for the features in registry
func New(config *core.Config, logger *core.Logger, registry *core.Registry) *Server {
	s := &Server{
		config:   config,
		logger:   logger,
		registry: registry,
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) routes() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)
	mux.Use(s.corsHandler().Handler)

	mux.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	})

	tokens := auth.NewMiddleware(s.config.API.TokenHash, s.logger)
	if !tokens.Enabled() {
		s.logger.Warn("API token not configured; the API is unauthenticated")
	}

	mux.Route("/api", func(r chi.Router) {
		r.Use(tokens.Authenticate)

		// Feature routes - use the registry to get all feature routes
		for _, route := range s.registry.GetAllRoutes() {
			r.Method(route.Method, route.Path, route.Handler)
		}
	})

	return mux
}

func (s *Server) corsHandler() *cors.Cors {
	origins := s.config.API.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	})
}

// Start serves until the server is shut down
func (s *Server) Start() error {
	s.logger.Info("Starting server", "host", s.config.Server.Host, "port", s.config.Server.Port)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then stops every feature
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}

	s.registry.ShutdownAll(ctx)
	return nil
}
