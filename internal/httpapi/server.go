// Package httpapi serves the worker's read-side HTTP surface: the
// verification queue, reading status, verifier history, leaderboard,
// health and Prometheus metrics.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/communimeter/verify-worker/internal/metrics"
	"github.com/communimeter/verify-worker/internal/service"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Server wires the HTTP routes for the verification read API.
type Server struct {
	svc     *service.VerificationService
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewServer creates a new HTTP API server
func NewServer(svc *service.VerificationService, m *metrics.Metrics, logger *zap.Logger) *Server {
	return &Server{svc: svc, metrics: m, logger: logger}
}

// Routes builds the route mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/verify/queue", s.handleQueue)
	mux.HandleFunc("GET /v1/verify/readings/{id}/status", s.handleStatus)
	mux.HandleFunc("GET /v1/verify/history", s.handleHistory)
	mux.HandleFunc("GET /v1/verify/leaderboard", s.handleLeaderboard)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// StartServer runs the HTTP server on the service port via fx lifecycle.
func StartServer(lc fx.Lifecycle, server *Server, port int, logger *zap.Logger) {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", httpServer.Addr)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", httpServer.Addr, err)
			}
			logger.Info("http server listening", zap.String("addr", httpServer.Addr))
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("http server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down http server")
			return httpServer.Shutdown(ctx)
		},
	})
}
