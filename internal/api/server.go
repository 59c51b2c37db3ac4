package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/amaumene/watchsync/internal/api/handlers"
	"github.com/amaumene/watchsync/internal/api/middleware"
	"github.com/amaumene/watchsync/internal/config"
	"github.com/amaumene/watchsync/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Server represents the HTTP server
type Server struct {
	server   *http.Server
	library  handlers.Library
	tracking handlers.Tracking
	session  handlers.Session
	logger   *logrus.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, library handlers.Library, tracking handlers.Tracking, session handlers.Session, logger *logrus.Logger) *Server {
	s := &Server{
		library:  library,
		tracking: tracking,
		session:  session,
		logger:   logger,
	}

	s.server = &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the routed handler wrapped in the logging middleware
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return middleware.Logging(mux, s.logger)
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	healthHandler := handlers.NewHealthHandler(s.logger)
	mux.Handle("GET /health", healthHandler)

	statusHandler := handlers.NewStatusHandler(s.library, s.tracking, s.session, s.logger)
	mux.Handle("GET /status", statusHandler)

	mux.Handle("GET /metrics", metrics.Handler())

	playback := handlers.NewPlaybackHandler(s.library, s.tracking, s.logger)
	mux.HandleFunc("POST /api/playback/progress", playback.Progress)
	mux.HandleFunc("POST /api/playback/complete", playback.Complete)

	history := handlers.NewHistoryHandler(s.library, s.logger)
	mux.HandleFunc("GET /api/history", history.List)
	mux.HandleFunc("POST /api/history", history.Add)
	mux.HandleFunc("DELETE /api/history", history.Clear)
	mux.HandleFunc("DELETE /api/history/{id}", history.Remove)
	mux.HandleFunc("GET /api/progress/{mediaId}/{episode}", history.Progress)

	watchlist := handlers.NewWatchlistHandler(s.library, s.logger)
	mux.HandleFunc("POST /api/watchlist", watchlist.Add)
	mux.HandleFunc("GET /api/watchlist/{id}", watchlist.Get)
	mux.HandleFunc("DELETE /api/watchlist/{id}", watchlist.Remove)

	events := handlers.NewEventsHandler(s.session, s.logger)
	mux.HandleFunc("POST /api/events/focus", events.Focus)
	mux.HandleFunc("POST /api/events/online", events.Online)
	mux.HandleFunc("POST /api/sync/flush", events.Flush)
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	s.logger.WithField("port", s.server.Addr).Info("Starting HTTP server")

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}
