// Package metrics holds the process's Prometheus registry and the series
// every other component records against. Kept outside internal/httpapi so
// internal/worker and internal/adapters/postgres, which record their own
// series, don't have to import the HTTP layer to reach it.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics carries every series the pipeline exposes: ingest rate by level,
// DMQ append outcomes and stream length, worker processed-record counts by
// outcome and batch-size histogram, PLS query and batch-insert duration
// histograms, and the pool's size/in-use/available gauges, acquire-duration
// histogram, long-held counts by threshold, and leak total.
type Metrics struct {
	Registry *prometheus.Registry

	IngestTotal       *prometheus.CounterVec
	DMQAppendTotal    *prometheus.CounterVec
	DMQStreamLength   prometheus.Gauge
	WorkerProcessed   *prometheus.CounterVec
	WorkerBatchSize   prometheus.Histogram
	PLSQueryDuration  prometheus.Histogram
	PLSInsertDuration prometheus.Histogram
	PoolSize          prometheus.Gauge
	PoolInUse         prometheus.Gauge
	PoolAvailable     prometheus.Gauge
	PoolAcquireTime   prometheus.Histogram
	PoolLongHeld      *prometheus.GaugeVec
	PoolLeakTotal     prometheus.Gauge
}

// NewMetrics registers every series on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		Registry: registry,
		IngestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logflow_ingest_total",
			Help: "Total ingest submissions by log level and outcome.",
		}, []string{"level", "outcome"}),
		DMQAppendTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logflow_dmq_append_total",
			Help: "Total DMQ append attempts by outcome.",
		}, []string{"outcome"}),
		DMQStreamLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logflow_dmq_stream_length",
			Help: "Current DMQ stream length.",
		}),
		WorkerProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "logflow_worker_processed_total",
			Help: "Total records processed by the worker pool by outcome.",
		}, []string{"outcome"}),
		WorkerBatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logflow_worker_batch_size",
			Help:    "Distribution of worker drain batch sizes.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		PLSQueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logflow_pls_query_duration_seconds",
			Help:    "PLS query duration.",
			Buckets: prometheus.DefBuckets,
		}),
		PLSInsertDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logflow_pls_batch_insert_duration_seconds",
			Help:    "PLS batch insert duration.",
			Buckets: prometheus.DefBuckets,
		}),
		PoolSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logflow_pool_size",
			Help: "Configured PLS pool size plus overflow.",
		}),
		PoolInUse: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logflow_pool_in_use",
			Help: "PLS sessions currently acquired.",
		}),
		PoolAvailable: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logflow_pool_available",
			Help: "PLS sessions currently idle.",
		}),
		PoolAcquireTime: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "logflow_pool_acquire_duration_seconds",
			Help:    "Time spent acquiring a PLS session.",
			Buckets: prometheus.DefBuckets,
		}),
		PoolLongHeld: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "logflow_pool_long_held_sessions",
			Help: "Sessions held longer than a leak-detection threshold.",
		}, []string{"threshold"}),
		PoolLeakTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "logflow_pool_leak_total",
			Help: "Total sessions currently flagged by leak detection.",
		}),
	}
}

// ObservePoolStats updates the pool gauges from a postgres.Stats-shaped
// snapshot. The caller passes primitives rather than the postgres type to
// keep this package independent of the adapter's internals.
func (m *Metrics) ObservePoolStats(size, inUse, available int, longHeld map[time.Duration]int64, leakTotal int64) {
	if m == nil {
		return
	}

	m.PoolSize.Set(float64(size))
	m.PoolInUse.Set(float64(inUse))
	m.PoolAvailable.Set(float64(available))
	m.PoolLeakTotal.Set(float64(leakTotal))

	for threshold, count := range longHeld {
		m.PoolLongHeld.WithLabelValues(threshold.String()).Set(float64(count))
	}
}

// ObserveIngest records one ingest attempt's outcome by level. m may be
// nil, in which case the call is a no-op; every caller treats metrics as
// optional so a missing registry never affects pipeline behavior.
func (m *Metrics) ObserveIngest(level, outcome string) {
	if m == nil {
		return
	}

	m.IngestTotal.WithLabelValues(level, outcome).Inc()
}

// ObserveDMQAppend records one DMQ append attempt's outcome.
func (m *Metrics) ObserveDMQAppend(outcome string) {
	if m == nil {
		return
	}

	m.DMQAppendTotal.WithLabelValues(outcome).Inc()
}

// ObserveWorkerBatch records one drained batch's size and the per-record
// outcome counts within it.
func (m *Metrics) ObserveWorkerBatch(size int, outcomeCounts map[string]int) {
	if m == nil {
		return
	}

	m.WorkerBatchSize.Observe(float64(size))

	for outcome, count := range outcomeCounts {
		m.WorkerProcessed.WithLabelValues(outcome).Add(float64(count))
	}
}

// ObserveDMQStreamLength updates the current stream-length gauge.
func (m *Metrics) ObserveDMQStreamLength(length int64) {
	if m == nil {
		return
	}

	m.DMQStreamLength.Set(float64(length))
}

// TimePLSQuery records how long a QueryRecent call took.
func (m *Metrics) TimePLSQuery(d time.Duration) {
	if m == nil {
		return
	}

	m.PLSQueryDuration.Observe(d.Seconds())
}

// TimePLSInsert records how long a BatchInsert call took.
func (m *Metrics) TimePLSInsert(d time.Duration) {
	if m == nil {
		return
	}

	m.PLSInsertDuration.Observe(d.Seconds())
}

// TimePoolAcquire records how long a pool Acquire call took.
func (m *Metrics) TimePoolAcquire(d time.Duration) {
	if m == nil {
		return
	}

	m.PoolAcquireTime.Observe(d.Seconds())
}
