// Package prometheus provides the Prometheus implementations of the metrics
// interfaces. Importing it registers the constructors with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/blobgc/pkg/metrics"
)

func init() {
	metrics.RegisterGCMetricsConstructor(NewGCMetrics)
	metrics.RegisterBackendMetricsConstructor(NewBackendMetrics)
}

// gcMetrics is the Prometheus implementation of metrics.GCMetrics.
type gcMetrics struct {
	phaseRuns         *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
	affected          *prometheus.CounterVec
	chunkSize         *prometheus.HistogramVec
	chunkDuration     *prometheus.HistogramVec
	retries           *prometheus.CounterVec
	integrityWarnings *prometheus.CounterVec
	lastSuccess       *prometheus.GaugeVec
}

// NewGCMetrics creates a new Prometheus-backed GCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewGCMetrics() metrics.GCMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &gcMetrics{
		phaseRuns: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_phase_runs_total",
				Help: "Total number of GC phase executions by phase and status",
			},
			[]string{"phase", "status"},
		),
		phaseDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobgc_phase_duration_seconds",
				Help: "Duration of GC phases in seconds",
				Buckets: []float64{
					0.1,   // trivial catalogs
					1,     // 1s
					10,    // 10s
					60,    // 1m
					300,   // 5m
					900,   // 15m
					3600,  // 1h - large prunes
					14400, // 4h - full sweeps of large remotes
				},
			},
			[]string{"phase"},
		),
		affected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_affected_total",
				Help: "Total number of rows or blobs affected by kind",
			},
			[]string{"phase", "kind"},
		),
		chunkSize: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "blobgc_chunk_size",
				Help:    "Distribution of adaptive loop chunk sizes",
				Buckets: prometheus.ExponentialBuckets(1, 4, 10), // 1 .. 262144
			},
			[]string{"phase"},
		),
		chunkDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobgc_chunk_duration_milliseconds",
				Help: "Duration of adaptive loop chunks in milliseconds",
				Buckets: []float64{
					10,    // 10ms
					100,   // 100ms
					500,   // 500ms
					1000,  // 1s - default floor
					2000,  // 2s
					4000,  // 4s - default ceiling
					10000, // 10s
					30000, // 30s
				},
			},
			[]string{"phase"},
		),
		retries: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_chunk_retries_total",
				Help: "Total number of chunks retried after a transient error",
			},
			[]string{"phase"},
		),
		integrityWarnings: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_integrity_warnings_total",
				Help: "Total number of catalog/storage inconsistencies detected",
			},
			[]string{"kind"},
		),
		lastSuccess: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "blobgc_phase_last_success_timestamp_seconds",
				Help: "Unix time of the last successful completion of each phase",
			},
			[]string{"phase"},
		),
	}
}

func (m *gcMetrics) ObservePhase(phase string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	} else {
		m.lastSuccess.WithLabelValues(phase).SetToCurrentTime()
	}
	m.phaseRuns.WithLabelValues(phase, status).Inc()
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

func (m *gcMetrics) RecordAffected(phase, kind string, n int) {
	m.affected.WithLabelValues(phase, kind).Add(float64(n))
}

func (m *gcMetrics) ObserveChunk(phase string, size int, duration time.Duration) {
	m.chunkSize.WithLabelValues(phase).Observe(float64(size))
	m.chunkDuration.WithLabelValues(phase).Observe(float64(duration.Milliseconds()))
}

func (m *gcMetrics) RecordRetry(phase string) {
	m.retries.WithLabelValues(phase).Inc()
}

func (m *gcMetrics) RecordIntegrityWarning(kind string) {
	m.integrityWarnings.WithLabelValues(kind).Inc()
}
