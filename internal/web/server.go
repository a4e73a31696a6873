package web

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/cjeanneret/ScopeGo/internal/debug"
	"github.com/cjeanneret/ScopeGo/internal/metrics"
)

// Server wraps the HTTP server and handlers.
type Server struct {
	addr     string
	handlers *Handlers
}

// NewServer creates a server configured for the given address and dependencies.
func NewServer(addr string, deps Deps) (*Server, error) {
	subFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, fmt.Errorf("web: static fs: %w", err)
	}
	return &Server{
		addr:     addr,
		handlers: NewHandlers(deps, subFS),
	}, nil
}

// Mux returns an http.Handler with all routes registered.
func (s *Server) Mux() http.Handler {
	mux := http.NewServeMux()
	h := s.handlers

	mux.HandleFunc("GET /ping", h.HandlePing)
	mux.HandleFunc("GET /cameras", h.HandleCameras)
	mux.HandleFunc("GET /motor/write", h.HandleMotorWrite)
	mux.HandleFunc("GET /motor/read", h.HandleMotorRead)
	mux.HandleFunc("GET /motor/stream", h.HandleMotorStream)
	mux.HandleFunc("POST /guide/start", h.HandleGuideStart)
	mux.HandleFunc("POST /guide/stop", h.HandleGuideStop)
	mux.HandleFunc("GET /guide/status", h.HandleGuideStatus)
	mux.HandleFunc("GET /guide/debug", h.HandleGuideDebug)
	mux.HandleFunc("GET /cam/check_rotation", h.HandleCheckRotation)
	mux.HandleFunc("GET /status/stream", h.HandleStatusStream)
	mux.Handle("GET /metrics", metrics.Handler())
	mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.FS(h.staticFS))))
	mux.HandleFunc("GET /{$}", h.ServeIndex) // exact match for root only

	return metrics.Middleware(mux)
}

// Run starts the server and blocks until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Mux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		debug.Info("Web server listening on %s", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
