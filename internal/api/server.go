package api

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/flatwatch/flatwatch/internal/feed"
	"github.com/flatwatch/flatwatch/internal/monitor"
)

// Server wraps the HTTP server and mux for the flatwatch API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the API server wired with all routes.
func NewServer(port int, sched *monitor.Scheduler, feedSvc *feed.Service) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /api/v1/status", HandleStatus(sched))
	mux.Handle("POST /api/v1/actions/force-check", HandleForceCheck(sched))
	mux.Handle("GET /api/v1/feed", HandleFeed(feedSvc))

	srv := &http.Server{
		Addr:    net.JoinHostPort("", strconv.Itoa(port)),
		Handler: mux,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
	}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}
