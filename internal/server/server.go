// Package server exposes the interactive renderer over HTTP: an image
// endpoint for remote assets, a render endpoint, and a websocket mount
// that keeps one live view per connection.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ziadkadry99/examrender/internal/assets"
	"github.com/ziadkadry99/examrender/internal/live"
)

// Config holds server settings.
type Config struct {
	Port      int
	ImagesDir string
	AllowAll  bool // allow any CORS origin
}

// Server serves the interactive surface.
type Server struct {
	config     Config
	renderer   *live.Renderer
	images     *assets.Static
	logger     *slog.Logger
	router     chi.Router
	httpServer *http.Server
}

// New creates a new Server.
func New(cfg Config, renderer *live.Renderer, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:   cfg,
		renderer: renderer,
		images:   assets.NewStatic(cfg.ImagesDir, logger),
		logger:   logger,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	corsOpts := cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}
	if s.config.AllowAll {
		corsOpts.AllowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(corsOpts))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)

	// The websocket route must not sit behind the request timeout.
	r.Get("/ws/mount", s.handleMount)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Logger)
		r.Use(middleware.Timeout(60 * time.Second))
		r.Get("/api/images/*", s.handleImage)
		r.Post("/api/render", s.handleRender)
	})

	return r
}

// Router returns the chi router.
func (s *Server) Router() chi.Router {
	return s.router
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.logger.Info("server listening", "addr", addr, "images_dir", s.config.ImagesDir)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
