// Package diagnostics runs the engine's operational HTTP surface:
// liveness, Prometheus scrape, and a plain-text status summary. It carries
// none of the dashboard UI (websocket hub, static assets) the teacher's
// api.Server serves — this engine has no browser-facing view, only the
// ambient observability every long-running service needs.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"triarb/internal/coordination"
	"triarb/internal/trader"
)

// Server exposes /healthz, /metrics, and /status.
type Server struct {
	server *http.Server
	logger *slog.Logger
}

// StatusProvider supplies the live state /status reports.
type StatusProvider struct {
	Trader *trader.Trader
	Reset  *coordination.ResetSignal
}

// New builds a Server listening on addr (":8090"-style).
func New(addr string, status StatusProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "permalocked=%t\nreset_pending=%t\n", status.Trader.Permalocked(), status.Reset.Fired())
	})

	return &Server{
		server: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger.With("component", "diagnostics"),
	}
}

// Start runs the server until it is stopped; blocks like http.Server.ListenAndServe.
func (s *Server) Start() error {
	s.logger.Info("diagnostics server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("diagnostics server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
