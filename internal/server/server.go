// Package server exposes a small read-only status API while the monitor
// is running: liveness, the jobs currently in flight, and scheduler
// counters. It is optional; without --status-addr nothing listens.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/harrypuuter/ram/internal/observability"
	"github.com/harrypuuter/ram/pkg/scheduler"
)

// Stats is the snapshot served at /api/v1/stats.
type Stats struct {
	Probes       int       `json:"probes"`
	Workers      int       `json:"workers"`
	QueueLength  int       `json:"queue_length"`
	InflightJobs int       `json:"inflight_jobs"`
	StartedAt    time.Time `json:"started_at"`
}

// StatsFunc produces the current stats snapshot.
type StatsFunc func() Stats

type Server struct {
	httpServer *http.Server
	log        *zap.Logger
}

func New(addr string, inflight *scheduler.Registry, stats StatsFunc) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/v1/jobs", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, inflight.Snapshot())
	})
	r.Get("/api/v1/stats", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, stats())
	})

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		log: observability.Logger,
	}
}

// Handler exposes the routes for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.log.Info("Status server listening", zap.String("addr", s.httpServer.Addr))
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
