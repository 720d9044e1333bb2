package adminapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Server is a thin wrapper around http.Server giving the admin API a
// blocking Serve and a context-bounded Shutdown.
type Server struct {
	httpServer *http.Server
}

// NewServer binds an admin API HTTP server to addr, serving handler.
func NewServer(addr string, handler http.Handler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Serve blocks until the server is shut down via Shutdown, returning nil on
// a clean stop (http.ErrServerClosed is not passed on).
func (s *Server) Serve() error {
	err := s.httpServer.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("adminapi: serve: %w", err)
}

// Shutdown gracefully stops the server, waiting for in-flight requests to
// complete or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
