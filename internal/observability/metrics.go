package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges shared by
// every feed worker. Vectors are labelled by worker name so one registry
// serves all pipelines.
type Metrics struct {
	RunsTotal        *prometheus.CounterVec // labels: source, outcome={ok,failed}
	RecordsFetched   *prometheus.CounterVec // labels: source
	NormalizeErrors  *prometheus.CounterVec // labels: source
	EventsSkipped    *prometheus.CounterVec // labels: source (dedup gate)
	EventsIncomplete *prometheus.CounterVec // labels: source
	EventsWritten    *prometheus.CounterVec // labels: source
	WriteFailures    *prometheus.CounterVec // labels: source

	ClassifyBatches  prometheus.Counter
	ClassifyFailures prometheus.Counter

	RunDuration    *prometheus.HistogramVec // labels: source
	WorkersRunning prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "runs_total",
			Help:      "Completed pipeline runs by source and outcome.",
		}, []string{"source", "outcome"}),
		RecordsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "records_fetched_total",
			Help:      "Raw records returned by source adapters.",
		}, []string{"source"}),
		NormalizeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "normalize_errors_total",
			Help:      "Per-record normalization failures (isolated, non-fatal).",
		}, []string{"source"}),
		EventsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "events_skipped_total",
			Help:      "Events skipped by the deduplication gate.",
		}, []string{"source"}),
		EventsIncomplete: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "events_incomplete_total",
			Help:      "Events dropped before persistence for missing type or category.",
		}, []string{"source"}),
		EventsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "events_written_total",
			Help:      "Canonical events written to storage.",
		}, []string{"source"}),
		WriteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "write_failures_total",
			Help:      "Per-row persistence failures (counted, non-fatal).",
		}, []string{"source"}),
		ClassifyBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "classify_batches_total",
			Help:      "Classification workflow batches submitted.",
		}),
		ClassifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "highway_etl",
			Name:      "classify_failures_total",
			Help:      "Classification batches that failed or misaligned.",
		}),
		RunDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "highway_etl",
			Name:      "run_duration_seconds",
			Help:      "Duration of one full pipeline run.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"source"}),
		WorkersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "highway_etl",
			Name:      "workers_running",
			Help:      "Number of feed workers currently scheduled.",
		}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.RunsTotal,
		m.RecordsFetched,
		m.NormalizeErrors,
		m.EventsSkipped,
		m.EventsIncomplete,
		m.EventsWritten,
		m.WriteFailures,
		m.ClassifyBatches,
		m.ClassifyFailures,
		m.RunDuration,
		m.WorkersRunning,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
