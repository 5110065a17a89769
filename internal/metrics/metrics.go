// Package metrics exposes pipeline telemetry in Prometheus format.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics for frontier
type Registry struct {
	registry *prometheus.Registry

	// Pipeline metrics
	Runs          *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec

	// Solver metrics
	SolverIterations *prometheus.HistogramVec

	// Scheduler metrics
	ScheduledRuns   *prometheus.CounterVec
	LastScheduledAt prometheus.Gauge
}

// NewRegistry creates a new registry with all frontier metrics plus the Go runtime
// and process collectors.
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),

		Runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_optimization_runs_total",
				Help: "Total number of optimization runs by objective and outcome",
			},
			[]string{"objective", "outcome"},
		),

		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontier_stage_duration_seconds",
				Help:    "Duration of each pipeline stage in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"stage"},
		),

		SolverIterations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "frontier_solver_iterations",
				Help:    "Active-set iterations or branch-and-bound nodes per solve",
				Buckets: prometheus.ExponentialBuckets(1, 4, 9),
			},
			[]string{"solver"},
		),

		ScheduledRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frontier_scheduled_runs_total",
				Help: "Total number of scheduled profile runs by profile and status",
			},
			[]string{"profile", "status"},
		),

		LastScheduledAt: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "frontier_last_scheduled_run_timestamp_seconds",
				Help: "Unix time of the last scheduled batch",
			},
		),
	}

	r.registry.MustRegister(
		r.Runs,
		r.StageDuration,
		r.SolverIterations,
		r.ScheduledRuns,
		r.LastScheduledAt,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// ObserveStage records the duration of one pipeline stage.
func (r *Registry) ObserveStage(stage string, d time.Duration) {
	r.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun counts a finished pipeline run.
func (r *Registry) ObserveRun(objective, outcome string) {
	r.Runs.WithLabelValues(objective, outcome).Inc()
}

// ObserveSolver records the work a solver needed.
func (r *Registry) ObserveSolver(solver string, iterations int) {
	r.SolverIterations.WithLabelValues(solver).Observe(float64(iterations))
}

// ObserveScheduledRun counts one profile run started by the scheduler.
func (r *Registry) ObserveScheduledRun(profile string, ok bool, at time.Time) {
	status := "success"
	if !ok {
		status = "error"
	}
	r.ScheduledRuns.WithLabelValues(profile, status).Inc()
	r.LastScheduledAt.Set(float64(at.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
