// internal/metrics/server.go
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server exposes /metrics and /healthz.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a metrics server listening on addr.
func NewServer(addr string, logger *zap.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.Named("metrics"),
	}
}

// Handler returns the server's handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Serve accepts connections on l until Stop is called. It returns nil after a
// clean shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Metrics server listening.", zap.String("addr", l.Addr().String()))
	if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on the configured address and serves.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return err
	}
	return s.Serve(l)
}

// Stop stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
