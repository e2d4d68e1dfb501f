// Package metrics exposes Prometheus metrics for release runs.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for releasekit. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	// Run metrics
	Runs        *prometheus.CounterVec
	RunDuration *prometheus.HistogramVec

	// Stage metrics
	StageDuration *prometheus.HistogramVec
	StageOutcomes *prometheus.CounterVec

	// Rollback metrics
	Rollbacks          *prometheus.CounterVec
	RollbackComponents *prometheus.CounterVec

	// Publish metrics
	Publishes       *prometheus.CounterVec
	ArtifactUploads *prometheus.CounterVec

	// Errors by code
	Errors *prometheus.CounterVec
}

// NewMetrics creates a Metrics instance registered with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	factory := promauto.With(registry)

	return &Metrics{
		Runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_runs_total",
				Help: "Total number of release runs by final state",
			},
			[]string{"state"},
		),
		RunDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "releasekit_run_duration_seconds",
				Help:    "Release run duration in seconds",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"state"},
		),

		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "releasekit_stage_duration_seconds",
				Help:    "Pipeline stage duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
		StageOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_stage_outcomes_total",
				Help: "Total number of stage outcomes",
			},
			[]string{"stage", "outcome"},
		),

		Rollbacks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_rollbacks_total",
				Help: "Total number of rollbacks",
			},
			[]string{"success"},
		),
		RollbackComponents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_rollback_components_total",
				Help: "Rollback outcomes per component",
			},
			[]string{"component", "result"},
		),

		Publishes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_publish_total",
				Help: "Total number of publish attempts",
			},
			[]string{"target", "success"},
		),
		ArtifactUploads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_artifact_uploads_total",
				Help: "Total number of release artifact uploads",
			},
			[]string{"success"},
		),

		Errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "releasekit_errors_total",
				Help: "Total number of release errors by code and severity",
			},
			[]string{"code", "severity"},
		),
	}
}

// RecordStage records a stage outcome and its duration.
func (m *Metrics) RecordStage(stage, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
	m.StageOutcomes.WithLabelValues(stage, outcome).Inc()
}

// RecordRun records the final state of a run.
func (m *Metrics) RecordRun(state string, d time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(state).Inc()
	m.RunDuration.WithLabelValues(state).Observe(d.Seconds())
}

// RecordRollback records a rollback and the result of each component.
// results maps component name to "restored", "skipped" or "failed".
func (m *Metrics) RecordRollback(success bool, results map[string]string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(strconv.FormatBool(success)).Inc()
	for component, result := range results {
		m.RollbackComponents.WithLabelValues(component, result).Inc()
	}
}

// RecordPublish records a publish attempt against target ("host", "npm", "oci").
func (m *Metrics) RecordPublish(target string, success bool) {
	if m == nil {
		return
	}
	m.Publishes.WithLabelValues(target, strconv.FormatBool(success)).Inc()
}

// RecordArtifacts records artifact upload results.
func (m *Metrics) RecordArtifacts(succeeded, failed int) {
	if m == nil {
		return
	}
	m.ArtifactUploads.WithLabelValues("true").Add(float64(succeeded))
	m.ArtifactUploads.WithLabelValues("false").Add(float64(failed))
}

// RecordError records one result entry.
func (m *Metrics) RecordError(code, severity string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(code, severity).Inc()
}
