// Package metrics provides Prometheus metrics for the workbench.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	wberrors "fraud-workbench/internal/errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "workbench"

// Metrics holds the workbench collectors on their own registry.
type Metrics struct {
	Registry *prometheus.Registry

	// APIRequestsTotal tracks backend requests by endpoint and outcome
	APIRequestsTotal *prometheus.CounterVec

	// APIRequestDuration tracks backend request latency
	APIRequestDuration *prometheus.HistogramVec

	// StaleResponsesDropped counts responses discarded because a newer
	// request of the same category was issued
	StaleResponsesDropped *prometheus.CounterVec

	// CaseSubmissions tracks note and action saves
	CaseSubmissions *prometheus.CounterVec

	// GraphLoads tracks graph loads by the endpoint that answered
	GraphLoads *prometheus.CounterVec

	// AuditFailures counts audit events that no sink accepted
	AuditFailures prometheus.Counter
}

// New creates the collectors and registers them with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		APIRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "requests_total",
				Help:      "Total number of backend API requests",
			},
			[]string{"method", "endpoint", "status_code", "outcome"},
		),
		APIRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "api",
				Name:      "request_duration_seconds",
				Help:      "Duration of backend API requests in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "endpoint"},
		),
		StaleResponsesDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "workflow",
				Name:      "stale_responses_dropped_total",
				Help:      "Responses discarded because a newer request superseded them",
			},
			[]string{"category"},
		),
		CaseSubmissions: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cases",
				Name:      "submissions_total",
				Help:      "Total number of note and action submissions",
			},
			[]string{"kind", "status"},
		),
		GraphLoads: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "graph",
				Name:      "loads_total",
				Help:      "Total number of graph loads by answering endpoint",
			},
			[]string{"endpoint", "status"},
		),
		AuditFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "audit",
				Name:      "failures_total",
				Help:      "Audit events rejected by their sinks",
			},
		),
	}
}

// ObserveRequest records a backend request. Its signature matches
// api.RequestObserver.
func (m *Metrics) ObserveRequest(method, endpoint string, status int, d time.Duration, err error) {
	code := "none"
	if status > 0 {
		code = strconv.Itoa(status)
	}
	m.APIRequestsTotal.WithLabelValues(method, endpoint, code, Outcome(err)).Inc()
	m.APIRequestDuration.WithLabelValues(method, endpoint).Observe(d.Seconds())
}

// RecordStale counts a dropped stale response.
func (m *Metrics) RecordStale(category string) {
	m.StaleResponsesDropped.WithLabelValues(category).Inc()
}

// RecordCaseSubmission counts a note or action save.
func (m *Metrics) RecordCaseSubmission(kind string, err error) {
	m.CaseSubmissions.WithLabelValues(kind, Outcome(err)).Inc()
}

// RecordGraphLoad counts a graph load.
func (m *Metrics) RecordGraphLoad(endpoint string, err error) {
	if endpoint == "" {
		endpoint = "none"
	}
	m.GraphLoads.WithLabelValues(endpoint, Outcome(err)).Inc()
}

// Outcome labels an error by its workbench kind: "ok", a kind name, or
// "error" for untyped failures.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := wberrors.KindOf(err); k != "" {
		return string(k)
	}
	return "error"
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
