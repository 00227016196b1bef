// Package server provides HTTP server management and lifecycle handling for the RxWriter service.
// It includes server setup, middleware configuration, route management, and graceful shutdown.
package server

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	_ "net/http/pprof"

	"github.com/giygas/rxwriter/config"
	"github.com/giygas/rxwriter/handlers"
	"github.com/giygas/rxwriter/logging"
	"github.com/giygas/rxwriter/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server represents the HTTP server
type Server struct {
	server  *http.Server
	router  chi.Router
	handler *handlers.HTTPHandlerImpl
	limiter *RateLimiter
	config  *config.Config
}

// NewServer creates a new server instance. limiter may be nil to disable rate limiting.
func NewServer(cfg *config.Config, handler *handlers.HTTPHandlerImpl, limiter *RateLimiter) *Server {
	router := chi.NewRouter()

	server := &Server{
		server: &http.Server{
			Handler:      router,
			Addr:         cfg.Address + ":" + cfg.Port,
			ReadTimeout:  15 * time.Second,
			// Searches fan out to the drug directory and can take a while
			WriteTimeout: cfg.DPDTimeout + 15*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		router:  router,
		handler: handler,
		limiter: limiter,
		config:  cfg,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures all middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(BlockDirectAccessMiddleware(s.config.TrustProxyOnly)) // Put BEFORE RealIPMiddleware to see original RemoteAddr
	s.router.Use(RealIPMiddleware)
	s.router.Use(logging.LoggingMiddleware(logging.Default()))
	s.router.Use(metrics.Metrics)
	s.router.Use(middleware.RedirectSlashes)
	s.router.Use(middleware.Recoverer)
	s.router.Use(RequestSizeMiddleware(s.config))
	if len(s.config.CORSOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORSOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
	if s.limiter != nil {
		s.router.Use(s.limiter.Middleware)
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	h := s.handler

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/navigation", h.Navigation)
		r.Post("/sessions", h.CreateSession)

		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", h.GetSession)
			r.Delete("/", h.DeleteSession)
			r.Patch("/prescription", h.UpdatePrescription)
			r.Patch("/pharmacist", h.UpdatePharmacist)
			r.Post("/search", h.Search)
			r.Put("/filters", h.SetFilters)
			r.Post("/selection", h.SelectMedication)
			r.Put("/custom-mode", h.SetCustomMode)
			r.Patch("/custom-entry", h.UpdateCustomEntry)
			r.Post("/custom-entry/submit", h.SubmitCustomEntry)
			r.Post("/prescriptions", h.AddPrescription)
			r.Post("/reset", h.ResetLookup)
			r.Get("/preview", h.Preview)
		})
	})

	// Sidebar pages without content yet
	s.router.Get("/prescriptions", h.NotImplemented)
	s.router.Get("/profile", h.NotImplemented)
	s.router.Get("/settings", h.NotImplemented)

	s.router.Get("/health", h.HealthCheck)
	s.router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.setupStaticRoutes()
}

// setupStaticRoutes serves the single page form and its favicon
func (s *Server) setupStaticRoutes() {
	htmlDir := s.config.HTMLDir

	s.router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600") // 1 hour
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		http.ServeFile(w, r, filepath.Join(htmlDir, "index.html"))
	})

	// Favicon
	s.router.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000") // 1 year
		w.Header().Set("Content-Type", "image/svg+xml")
		http.ServeFile(w, r, filepath.Join(htmlDir, "favicon.svg"))
	})
}

// Start starts the server
func (s *Server) Start() error {
	// Start profiling server if in development mode
	if s.config.Env == config.EnvDevelopment {
		s.startProfilingServer()
	}

	logging.Info(fmt.Sprintf("Starting server at: %s:%s", s.config.Address, s.config.Port))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	logging.Info("Shutting down server...")

	if err := s.server.Shutdown(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
		// If graceful shutdown fails, force close
		if err := s.server.Close(); err != nil {
			logging.Error("Server close error", "error", err)
			return err
		}
	}

	logging.Info("Server shutdown complete")
	return nil
}

// startProfilingServer starts the pprof profiling server in development mode
func (s *Server) startProfilingServer() {
	go func() {
		logging.Info("Profiling server started at http://localhost:6060/debug/pprof/")
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			logging.Warn("Profiling server failed", "error", err)
		}
	}()
}
