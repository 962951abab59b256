package metrics

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/core-tools/hsu-deploy/pkg/errors"
	"github.com/core-tools/hsu-deploy/pkg/logging"
)

// Server exposes /metrics over HTTP for the lifetime of a deployment
type Server struct {
	listener net.Listener
	server   *http.Server
	logger   logging.Logger
}

// NewServer binds host:port right away so port conflicts fail at startup
func NewServer(host string, port int, handler http.Handler, logger logging.Logger) (*Server, error) {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.NewIOError("failed to listen for metrics", err).WithContext("address", addr)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)

	return &Server{
		listener: listener,
		server: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Serve blocks until ctx is done
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("Serving metrics on %s/metrics", s.Addr())
		errCh <- s.server.Serve(s.listener)
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return errors.NewIOError("metrics server failed", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
