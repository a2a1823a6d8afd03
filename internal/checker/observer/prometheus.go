package observer

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder keeps its collectors on a private registry.
type PrometheusRecorder struct {
	Registry *prometheus.Registry

	ChecksTotal     *prometheus.CounterVec
	BuildDuration   prometheus.Histogram
	TestsDuration   prometheus.Histogram
	StageTotal      *prometheus.CounterVec
	StageDuration   *prometheus.HistogramVec
	SandboxEvents   *prometheus.CounterVec
	ActiveSandboxes prometheus.Gauge
}

// NewPrometheusRecorder creates a recorder with all collectors registered.
func NewPrometheusRecorder() *PrometheusRecorder {
	reg := prometheus.NewRegistry()

	r := &PrometheusRecorder{
		Registry: reg,

		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solcheck",
			Subsystem: "check",
			Name:      "total",
			Help:      "Completed checks by status and lint outcome.",
		}, []string{"status", "lint_success"}),

		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solcheck",
			Subsystem: "check",
			Name:      "build_duration_seconds",
			Help:      "Build stage duration per check in seconds.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 4, 6, 8, 10},
		}),

		TestsDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "solcheck",
			Subsystem: "check",
			Name:      "tests_duration_seconds",
			Help:      "Cumulative test stage duration per check in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 32},
		}),

		StageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solcheck",
			Subsystem: "stage",
			Name:      "total",
			Help:      "Stage executions by stage and status.",
		}, []string{"stage", "status"}),

		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "solcheck",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Single stage execution duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),

		SandboxEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solcheck",
			Subsystem: "sandbox",
			Name:      "events_total",
			Help:      "Sandbox lifecycle events.",
		}, []string{"event"}),

		ActiveSandboxes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solcheck",
			Subsystem: "sandbox",
			Name:      "active",
			Help:      "Number of sandboxes currently alive.",
		}),
	}

	reg.MustRegister(
		r.ChecksTotal,
		r.BuildDuration,
		r.TestsDuration,
		r.StageTotal,
		r.StageDuration,
		r.SandboxEvents,
		r.ActiveSandboxes,
	)

	return r
}

func (r *PrometheusRecorder) ObserveCheck(_ context.Context, status string, lintSuccess bool, buildTime, testsTime time.Duration) {
	r.ChecksTotal.WithLabelValues(status, strconv.FormatBool(lintSuccess)).Inc()
	r.BuildDuration.Observe(buildTime.Seconds())
	r.TestsDuration.Observe(testsTime.Seconds())
}

func (r *PrometheusRecorder) ObserveStage(_ context.Context, stage string, status string, elapsed time.Duration) {
	r.StageTotal.WithLabelValues(stage, status).Inc()
	r.StageDuration.WithLabelValues(stage).Observe(elapsed.Seconds())
}

func (r *PrometheusRecorder) ObserveSandbox(_ context.Context, event string) {
	r.SandboxEvents.WithLabelValues(event).Inc()
	switch event {
	case SandboxCreated:
		r.ActiveSandboxes.Inc()
	case SandboxDestroyed:
		r.ActiveSandboxes.Dec()
	}
}

// Handler serves the private registry in the Prometheus exposition format.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}
