package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/opencode-ai/actiongate/internal/approval"
	"github.com/opencode-ai/actiongate/internal/catalog"
	"github.com/opencode-ai/actiongate/internal/event"
	"github.com/opencode-ai/actiongate/internal/execution"
	"github.com/opencode-ai/actiongate/internal/metrics"
	"github.com/opencode-ai/actiongate/internal/permission"
	"github.com/opencode-ai/actiongate/internal/retention"
)

// Config holds server configuration.
type Config struct {
	Port         int
	Hostname     string
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		Hostname:     "",
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // No write timeout for SSE
	}
}

// Services are the governance components the API exposes.
type Services struct {
	Actions     *catalog.Service
	Permissions *permission.Store
	Resolver    *permission.Resolver
	Matrix      *permission.MatrixService
	Executions  *execution.Service
	Approvals   *approval.Gateway
	Retention   *retention.Policy
	Bus         *event.Bus
	// Metrics is optional; when set, requests are instrumented and
	// GET /metrics is served.
	Metrics *metrics.Metrics
}

// Server is the HTTP server.
type Server struct {
	config  *Config
	router  *chi.Mux
	httpSrv *http.Server

	actions     *catalog.Service
	permissions *permission.Store
	resolver    *permission.Resolver
	matrix      *permission.MatrixService
	executions  *execution.Service
	approvals   *approval.Gateway
	retention   *retention.Policy
	bus         *event.Bus
	metrics     *metrics.Metrics
}

// New creates a new Server instance.
func New(cfg *Config, svc Services) *Server {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	s := &Server{
		config:      cfg,
		router:      chi.NewRouter(),
		actions:     svc.Actions,
		permissions: svc.Permissions,
		resolver:    svc.Resolver,
		matrix:      svc.Matrix,
		executions:  svc.Executions,
		approvals:   svc.Approvals,
		retention:   svc.Retention,
		bus:         svc.Bus,
		metrics:     svc.Metrics,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	if s.metrics != nil {
		s.router.Use(s.metrics.Middleware)
	}

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", HeaderSourceClient},
			ExposedHeaders:   []string{"Link", "X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}
