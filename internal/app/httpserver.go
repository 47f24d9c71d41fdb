package app

import (
	"context"
	"net/http"

	"github.com/yungbote/video-ingestor/internal/obs"
)

// httpServer runs the C11 gin router in the background for the lifetime of
// watch mode, shutting down gracefully when the polling loop exits.
type httpServer struct {
	srv *http.Server
	log *obs.Logger
}

func newHTTPServer(addr string, handler http.Handler, log *obs.Logger) *httpServer {
	if addr == "" {
		addr = ":8080"
	}
	return &httpServer{srv: &http.Server{Addr: addr, Handler: handler}, log: log.With("service", "app.httpServer")}
}

func (s *httpServer) start() {
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Warn("health/status server stopped unexpectedly", "error", err)
		}
	}()
}

func (s *httpServer) stop(ctx context.Context) {
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warn("health/status server shutdown failed", "error", err)
	}
}
