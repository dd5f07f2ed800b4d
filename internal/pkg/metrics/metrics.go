// Package metrics exposes Prometheus metrics for sync runs, batch commits and the job queue.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "betsync"

	ModeInline     = "inline"
	ModeBackground = "background"
	ModeScheduled  = "scheduled"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeRetry   = "retry"
	OutcomeSkipped = "skipped"
)

// Manager owns the collectors of the service.
type Manager struct {
	registry *prometheus.Registry

	syncRuns       *prometheus.CounterVec
	syncDuration   *prometheus.HistogramVec
	recordsSynced  *prometheus.CounterVec
	recordsSkipped prometheus.Counter
	batchCommits   *prometheus.CounterVec
	batchSize      prometheus.Histogram
	estimates      *prometheus.CounterVec
	jobs           *prometheus.CounterVec
	queueDepth     *prometheus.GaugeVec
	scheduledRuns  *prometheus.CounterVec
}

var defaultManager = NewManager(prometheus.NewRegistry())

// NewManager registers all collectors on registry.
func NewManager(registry *prometheus.Registry) *Manager {
	auto := promauto.With(registry)
	m := &Manager{registry: registry}

	m.syncRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sync_runs_total",
		Help:      "Sync runs by execution mode and outcome",
	}, []string{"mode", "outcome"})

	m.syncDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sync_duration_seconds",
		Help:      "Wall time of finished sync runs",
		Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600},
	}, []string{"mode"})

	m.recordsSynced = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_synced_total",
		Help:      "Rollup records written by execution mode",
	}, []string{"mode"})

	m.recordsSkipped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "records_skipped_total",
		Help:      "Aggregated rows dropped by validation",
	})

	m.batchCommits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "batch_commits_total",
		Help:      "Upsert transactions by outcome",
	}, []string{"outcome"})

	m.batchSize = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "batch_records",
		Help:      "Records per committed batch",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.estimates = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimates_total",
		Help:      "Record estimates by method",
	}, []string{"method"})

	m.jobs = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Queue job attempts by type and outcome",
	}, []string{"type", "outcome"})

	m.queueDepth = auto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "queue_depth",
		Help:      "Length of the pending and processing job lists",
	}, []string{"list"})

	m.scheduledRuns = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "scheduled_runs_total",
		Help:      "Scheduler ticks by outcome (skipped when a previous run still holds the lock)",
	}, []string{"outcome"})

	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return m
}

// Default returns the process wide manager.
func Default() *Manager { return defaultManager }

// Handler serves the registry in the Prometheus text format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Manager) Registry() *prometheus.Registry { return m.registry }

func outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// ObserveSyncRun records a finished run.
func (m *Manager) ObserveSyncRun(mode string, records int64, elapsed time.Duration, err error) {
	m.syncRuns.WithLabelValues(mode, outcome(err)).Inc()
	m.syncDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	if records > 0 {
		m.recordsSynced.WithLabelValues(mode).Add(float64(records))
	}
}

// ObserveBatch records one upsert transaction.
func (m *Manager) ObserveBatch(size int, err error) {
	m.batchCommits.WithLabelValues(outcome(err)).Inc()
	if err == nil {
		m.batchSize.Observe(float64(size))
	}
}

func (m *Manager) IncSkipped() { m.recordsSkipped.Inc() }

// ObserveEstimate counts estimates by method (exact, approximate, fallback).
func (m *Manager) ObserveEstimate(method string) {
	m.estimates.WithLabelValues(method).Inc()
}

// ObserveJob counts one job attempt.
func (m *Manager) ObserveJob(jobType, result string) {
	m.jobs.WithLabelValues(jobType, result).Inc()
}

// SetQueueDepth publishes the length of a queue list.
func (m *Manager) SetQueueDepth(list string, depth int64) {
	m.queueDepth.WithLabelValues(list).Set(float64(depth))
}

// ObserveScheduledRun counts one scheduler tick.
func (m *Manager) ObserveScheduledRun(result string) {
	m.scheduledRuns.WithLabelValues(result).Inc()
}
