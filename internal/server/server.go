// Package server provides the HTTP server and routing for the optimizer.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/frontier/internal/config"
	"github.com/aristath/frontier/internal/di"
	optimizationhandlers "github.com/aristath/frontier/internal/modules/optimization/handlers"
	"github.com/aristath/frontier/internal/scheduler"
)

// requestTimeout is the minimum per-request deadline
const requestTimeout = 60 * time.Second

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Config    *config.Config
	Container *di.Container    // DI container with all services
	Jobs      *di.JobInstances // optional; enables manual job triggers
}

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	server         *http.Server
	log            zerolog.Logger
	cfg            *config.Config
	container      *di.Container
	systemHandlers *SystemHandlers
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	var jobs []scheduler.Job
	if cfg.Jobs != nil {
		jobs = append(jobs, cfg.Jobs.ResultCacheCleanup, cfg.Jobs.CheckWALCheckpoints)
	}

	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		cfg:       cfg.Config,
		container: cfg.Container,
		systemHandlers: NewSystemHandlers(
			cfg.Log,
			cfg.Config.DataDir,
			cfg.Container.PortfolioDB,
			cfg.Container.HistoryDB,
			cfg.Container.CalculationsDB,
			jobs...,
		),
	}

	s.setupMiddleware(cfg.Config.DevMode)
	s.setupRoutes()

	// long simulations must be able to finish writing their response
	writeTimeout := 15 * time.Second
	if t := cfg.Config.SimulationTimeout + 15*time.Second; t > writeTimeout {
		writeTimeout = t
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Config.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	// Recovery from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(s.loggingMiddleware)

	// Timeout
	timeout := requestTimeout
	if t := s.cfg.SimulationTimeout + 10*time.Second; t > timeout {
		timeout = t
	}
	s.router.Use(middleware.Timeout(timeout))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Compress responses
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.RateLimitPerMinute > 0 {
			r.Use(NewRateLimiter(s.cfg.RateLimitPerMinute).Middleware)
		}

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.systemHandlers.HandleSystemStatus)
			r.Post("/jobs/{name}", s.systemHandlers.HandleTriggerJob)
		})

		optimizationHandler := optimizationhandlers.NewHandler(
			s.container.OptimizationService,
			s.cfg.CORSOrigins,
			s.log,
		)
		optimizationHandler.RegisterRoutes(r)
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
