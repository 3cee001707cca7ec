// Package server provides the HTTP server and routing for the data hub.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/tradepulse/datahub/internal/di"
	"github.com/tradepulse/datahub/internal/domain"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Container *di.Container
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	container *di.Container
}

// New creates a new HTTP server
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		container: cfg.Container,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// Event stream must register before the timeout middleware scope;
		// websocket connections are long-lived.
		r.Get("/ws", s.handleEventStream)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/datasets", func(r chi.Router) {
				r.Get("/", s.handleListDatasets)
				r.Post("/", s.handleRegisterDataset)
				r.Post("/upload/csv", s.handleUploadCSV)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDataset)
					r.Put("/", s.handleUpdateDataset)
					r.Delete("/", s.handleRemoveDataset)
					r.Get("/describe", s.handleDescribeDataset)
					r.Post("/export", s.handleExportDataset)
					r.Post("/indicators", s.handleDeriveIndicator)
				})
			})

			r.Get("/sources", s.handleListSources)
			r.Post("/data/fetch", s.handleFetchAPIData)
			r.Post("/data/combined", s.handleFetchCombined)

			r.Route("/modules/{module}", func(r chi.Router) {
				r.Use(s.moduleCtx)
				r.Get("/datasets", s.handleModuleDatasets)
				r.Get("/data", s.handleModuleActiveData)
				r.Get("/summary", s.handleModuleSummary)
				r.Post("/activate", s.handleModuleActivate)
				r.Post("/deactivate", s.handleModuleDeactivate)
				r.Post("/reset", s.handleModuleReset)
				r.Post("/fetch", s.handleModuleFetch)
			})

			r.Get("/cache/stats", s.handleCacheStats)
			r.Post("/cache/clear", s.handleCacheClear)

			r.Post("/backup", s.handleBackupNow)
			r.Get("/backups", s.handleListBackups)

			r.Get("/system/status", s.handleSystemStatus)
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "datahub",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	var (
		notFound    *domain.DatasetNotFoundError
		invalid     *domain.InvalidDatasetError
		unknownSrc  *domain.UnknownSourceError
		unknownTf   *domain.UnknownTimeframeError
		unavailable *domain.SourceUnavailableError
	)
	switch {
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &invalid), errors.As(err, &unknownSrc), errors.As(err, &unknownTf):
		status = http.StatusBadRequest
	case errors.As(err, &unavailable):
		status = http.StatusBadGateway
	}

	s.writeJSON(w, status, map[string]any{"error": err.Error()})
}

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
