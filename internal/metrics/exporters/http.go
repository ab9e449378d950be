// Package exporters serves collected metrics over HTTP.
package exporters

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sky22333/svcmgr/internal/logging"
)

// HTTPHandler serves the default Prometheus registry, where the promauto
// metrics of package metrics live.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}

// Server is a minimal listener exposing /metrics.
type Server struct {
	srv    *http.Server
	logger logging.Logger
	bound  net.Addr
}

// NewServer creates a metrics server for addr (host:port).
func NewServer(addr string, logger logging.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", HTTPHandler())
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	s.bound = ln.Addr()
	s.logger.Info("Metrics endpoint listening", "addr", s.bound.String())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Metrics server failed", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address once Start succeeded, else the configured one.
func (s *Server) Addr() string {
	if s.bound != nil {
		return s.bound.String()
	}
	return s.srv.Addr
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
