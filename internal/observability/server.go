// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 CivGrid Contributors

// Package observability exposes Prometheus metrics and health probes
// over HTTP, plus the metric set the engines and repository record into.
package observability

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports whether the service has finished loading and
// can serve requests.
type ReadinessChecker func() bool

// Metrics is the CivGrid metric set. All fields are safe for concurrent
// use; a nil *Metrics disables recording.
type Metrics struct {
	// OperationsTotal counts engine operations by name and result code.
	OperationsTotal *prometheus.CounterVec
	// SavesTotal counts persistence writes by collection and status.
	SavesTotal *prometheus.CounterVec
	// SaveQueueDepth is the number of writes waiting in the async queue.
	SaveQueueDepth prometheus.Gauge
	// CivilizationsLoaded is the number of civilizations held in memory.
	CivilizationsLoaded prometheus.Gauge
	// ClaimsLoaded is the number of claims held in memory.
	ClaimsLoaded prometheus.Gauge
}

// NewMetrics creates and registers the CivGrid metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civgrid_operations_total",
				Help: "Engine operations by name and result",
			},
			[]string{"operation", "result"},
		),
		SavesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "civgrid_saves_total",
				Help: "Persistence writes by collection and status",
			},
			[]string{"collection", "status"},
		),
		SaveQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "civgrid_save_queue_depth",
			Help: "Writes waiting in the async persistence queue",
		}),
		CivilizationsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "civgrid_civilizations_loaded",
			Help: "Civilizations resident in memory",
		}),
		ClaimsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "civgrid_claims_loaded",
			Help: "Claims resident in memory",
		}),
	}
	reg.MustRegister(m.OperationsTotal, m.SavesTotal, m.SaveQueueDepth,
		m.CivilizationsLoaded, m.ClaimsLoaded)
	return m
}

// RecordOperation counts one engine operation outcome. Nil-safe.
func (m *Metrics) RecordOperation(operation, result string) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, result).Inc()
}

// RecordSave counts one persistence write outcome. Nil-safe.
func (m *Metrics) RecordSave(collection, status string) {
	if m == nil {
		return
	}
	m.SavesTotal.WithLabelValues(collection, status).Inc()
}

// SetQueueDepth updates the async queue depth gauge. Nil-safe.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.SaveQueueDepth.Set(float64(n))
}

// SetLoaded updates the resident-entity gauges. Nil-safe.
func (m *Metrics) SetLoaded(civs, claims int) {
	if m == nil {
		return
	}
	m.CivilizationsLoaded.Set(float64(civs))
	m.ClaimsLoaded.Set(float64(claims))
}

// Server serves /metrics, /healthz and /readyz.
type Server struct {
	addr       string
	listener   net.Listener
	httpServer *http.Server
	registry   *prometheus.Registry
	metrics    *Metrics
	isReady    ReadinessChecker
	running    atomic.Bool
}

// NewServer creates an observability server with its own registry so
// tests can run several instances side by side.
func NewServer(addr string, readinessChecker ReadinessChecker) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the metric set for recording application events.
func (s *Server) Metrics() *Metrics { return s.metrics }

// Start begins serving. The returned channel reports a server failure
// after startup and closes on graceful shutdown.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.With("addr", s.addr).Wrap(err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("/healthz", s.handleLiveness)
	mux.HandleFunc("/readyz", s.handleReadiness)

	httpSrv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.httpServer = httpSrv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if serveErr := httpSrv.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			slog.Error("observability server error", "error", serveErr)
			errCh <- serveErr
		}
	}()

	slog.Info("observability server started", "addr", listener.Addr().String())
	return errCh, nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.running.Store(true)
			return oops.With("operation", "shutdown_observability_server").Wrap(err)
		}
	}
	slog.Info("observability server stopped")
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	//nolint:errcheck // health probe write failure is the client's problem
	w.Write([]byte("ok\n"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.isReady == nil || s.isReady() {
		w.WriteHeader(http.StatusOK)
		//nolint:errcheck // health probe write failure is the client's problem
		w.Write([]byte("ok\n"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	//nolint:errcheck // health probe write failure is the client's problem
	w.Write([]byte("not ready\n"))
}
