// Package admin implements the optional observability plane (spec.md §4.10,
// SPEC_FULL.md): a chi router exposing worker status and Prometheus metrics,
// entirely off the data path and disabled unless configured.
package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/originserver/concurrenthttp/internal/ipc"
	"github.com/originserver/concurrenthttp/internal/stats"
)

// WorkerInfo is one worker's identity as reported to /debug/workers.
type WorkerInfo struct {
	PID      int `json:"pid"`
	Restarts int `json:"restarts"`
}

// WorkerSnapshotFn returns a point-in-time list of live workers.
type WorkerSnapshotFn func() []WorkerInfo

// Server is the admin HTTP surface, run by the master alongside its
// supervisor loop.
type Server struct {
	addr      string
	log       zerolog.Logger
	stats     *stats.Engine
	workers   WorkerSnapshotFn
	registry  *prometheus.Registry
	collector *statsCollector
}

// New builds an admin server bound to addr. It does nothing until Run is
// called.
func New(addr string, log zerolog.Logger, region *ipc.Region, workers WorkerSnapshotFn) *Server {
	eng := stats.New(region, time.Now())
	reg := prometheus.NewRegistry()
	col := newStatsCollector(eng)
	reg.MustRegister(col)

	return &Server{
		addr:      addr,
		log:       log,
		stats:     eng,
		workers:   workers,
		registry:  reg,
		collector: col,
	}
}

// Run serves the admin HTTP surface until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/debug/workers", s.handleWorkers)
	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: s.addr, Handler: r}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.workers())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
