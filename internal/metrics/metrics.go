// Package metrics exposes the daemon's Prometheus collectors and the
// HTTP endpoint that serves them.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the daemon reports. A nil *Registry is
// safe to call methods on; every method is a no-op, so callers can wire
// metrics unconditionally and skip the server when disabled.
type Registry struct {
	reg *prometheus.Registry

	messagesIngested  *prometheus.CounterVec
	messagesDropped   prometheus.Counter
	messagesDiscarded prometheus.Counter
	queueDepth        prometheus.Gauge
	queueDropped      prometheus.Gauge
	storeWrites       *prometheus.CounterVec
	archiveRuns       *prometheus.CounterVec
}

// New builds a fresh Registry with every collector registered.
func New() *Registry {
	reg := prometheus.NewRegistry()

	return &Registry{
		reg: reg,
		messagesIngested: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "muttd_messages_ingested_total",
				Help: "Total number of messages that passed validation, by source type.",
			},
			[]string{"type"},
		),
		messagesDropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muttd_messages_dropped_total",
			Help: "Total number of messages dropped by validation.",
		}),
		messagesDiscarded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "muttd_messages_discarded_total",
			Help: "Total number of messages discarded by a matched rule action.",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muttd_queue_depth",
			Help: "Current number of messages buffered in the ingestion queue.",
		}),
		queueDropped: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "muttd_queue_dropped_total",
			Help: "Cumulative number of messages dropped because the ingestion queue was full.",
		}),
		storeWrites: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "muttd_store_writes_total",
				Help: "Total number of message writes flushed to the store, by outcome.",
			},
			[]string{"outcome"},
		),
		archiveRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "muttd_archive_runs_total",
				Help: "Total number of archive sweeps, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

// IngestMessage records a message that passed validation.
func (r *Registry) IngestMessage(sourceType string) {
	if r == nil {
		return
	}
	r.messagesIngested.WithLabelValues(sourceType).Inc()
}

// DropMessage records a message rejected by validation.
func (r *Registry) DropMessage() {
	if r == nil {
		return
	}
	r.messagesDropped.Inc()
}

// DiscardMessage records a message discarded by a matched rule.
func (r *Registry) DiscardMessage() {
	if r == nil {
		return
	}
	r.messagesDiscarded.Inc()
}

// SetQueueDepth reports the current queue depth.
func (r *Registry) SetQueueDepth(depth int) {
	if r == nil {
		return
	}
	r.queueDepth.Set(float64(depth))
}

// SetQueueDropped reports the cumulative number of messages dropped
// because the ingestion queue was full.
func (r *Registry) SetQueueDropped(total int64) {
	if r == nil {
		return
	}
	r.queueDropped.Set(float64(total))
}

// RecordStoreWrite records the outcome of a single store write.
func (r *Registry) RecordStoreWrite(ok bool) {
	if r == nil {
		return
	}
	r.storeWrites.WithLabelValues(outcome(ok)).Inc()
}

// RecordArchiveRun records the outcome of an archive sweep.
func (r *Registry) RecordArchiveRun(ok bool) {
	if r == nil {
		return
	}
	r.archiveRuns.WithLabelValues(outcome(ok)).Inc()
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}

// Server exposes a Registry's collectors over /metrics.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer returns a Server for addr, ready for Serve. It does not bind
// or start listening until Serve is called.
func NewServer(addr string, reg *Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	promReg := prometheus.NewRegistry()
	if reg != nil {
		promReg = reg.reg
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))

	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Serve blocks, serving /metrics until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics listener failed", "addr", s.httpServer.Addr, "error", err)
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("metrics: serve: %w", err)
		}
		return nil
	}
}

// Stop closes the listener immediately without waiting for Serve's
// context to be cancelled.
func (s *Server) Stop() {
	_ = s.httpServer.Close()
}
