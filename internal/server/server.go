// Package server provides the HTTP server implementation.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/inventory-catalog/internal/cache"
	"github.com/vyrodovalexey/inventory-catalog/internal/config"
	"github.com/vyrodovalexey/inventory-catalog/internal/handler"
	"github.com/vyrodovalexey/inventory-catalog/internal/middleware"
)

// Deps holds the services the server exposes.
type Deps struct {
	// Catalog serves the item routes.
	Catalog handler.Catalog

	// Cache caches list and stats responses. Nil disables caching.
	Cache *cache.ResponseCache

	// Events is the item event feed. A new one is created when nil.
	Events *handler.WebSocketHandler
}

// Server represents the HTTP server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	config      *config.Config
	logger      *zap.Logger
	wsHandler   *handler.WebSocketHandler
	middlewares []middleware.Middleware
}

// New creates a new Server instance.
func New(cfg *config.Config, logger *zap.Logger, deps Deps) *Server {
	router := mux.NewRouter()

	s := &Server{
		router: router,
		config: cfg,
		logger: logger,
	}

	s.setupMiddleware()
	s.setupRoutes(deps)
	s.setupHTTPServer()

	return s
}

// setupMiddleware configures the middleware chain.
func (s *Server) setupMiddleware() {
	// First in the list is outermost.
	s.middlewares = []middleware.Middleware{
		middleware.Recovery(s.logger),
		middleware.RequestID(),
	}

	if s.config.MetricsEnabled {
		s.middlewares = append(s.middlewares, middleware.Metrics())
	}

	s.middlewares = append(s.middlewares,
		middleware.Logging(s.logger),
		middleware.CORS(s.config.CORSOrigins),
		middleware.BodyLimit(s.config.MaxBodyBytes),
	)

	for _, mw := range s.middlewares {
		s.router.Use(mux.MiddlewareFunc(mw))
	}
}

// setupRoutes configures the API routes.
func (s *Server) setupRoutes(deps Deps) {
	restHandler := handler.NewRESTHandler(deps.Catalog, deps.Cache, s.logger, s.config.IsDevelopment())
	restHandler.RegisterRoutes(s.router)

	s.wsHandler = deps.Events
	if s.wsHandler == nil {
		s.wsHandler = handler.NewWebSocketHandler(s.logger, s.config.CORSOrigins)
	}
	s.wsHandler.RegisterRoutes(s.router)

	if s.config.MetricsEnabled {
		s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	// mux skips router middleware for unmatched requests, so the fallback
	// carries its own chain. This also answers CORS preflight requests.
	fallback := middleware.Chain(s.middlewares...)(http.HandlerFunc(restHandler.NotFound))
	s.router.NotFoundHandler = fallback
	s.router.MethodNotAllowedHandler = fallback
}

// setupHTTPServer configures the HTTP server.
func (s *Server) setupHTTPServer() {
	s.httpServer = &http.Server{
		Addr:              s.config.Address(),
		Handler:           s.router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting server",
		zap.String("address", s.config.Address()),
		zap.Bool("metrics_enabled", s.config.MetricsEnabled),
		zap.String("environment", s.config.Environment),
	)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server listen and serve: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	// Close all WebSocket connections first
	if s.wsHandler != nil {
		s.wsHandler.CloseAllConnections()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// Router returns the server's router for testing purposes.
func (s *Server) Router() *mux.Router {
	return s.router
}
