package metrics

import (
	"time"
)

// GCMetrics records the progress of a garbage collection run.
type GCMetrics interface {
	// ObservePhase records a completed phase and its outcome.
	ObservePhase(phase string, duration time.Duration, err error)

	// RecordAffected adds n affected items of kind (e.g. "aliases_repointed",
	// "contents_deleted", "blobs_deleted") for phase.
	RecordAffected(phase, kind string, n int)

	// ObserveChunk records one chunk of the adaptive loop.
	ObserveChunk(phase string, size int, duration time.Duration)

	// RecordRetry counts a transient failure retried by the loop.
	RecordRetry(phase string)

	// RecordIntegrityWarning counts a detected catalog/storage inconsistency.
	RecordIntegrityWarning(kind string)
}

// NewGCMetrics creates a Prometheus-backed GCMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called) or the
// prometheus package was not imported.
func NewGCMetrics() GCMetrics {
	if !IsEnabled() || newPrometheusGCMetrics == nil {
		return nil
	}
	return newPrometheusGCMetrics()
}

// newPrometheusGCMetrics is set by pkg/metrics/prometheus/gc.go.
var newPrometheusGCMetrics func() GCMetrics

// RegisterGCMetricsConstructor registers the Prometheus GC metrics constructor.
// Called by pkg/metrics/prometheus during package initialization.
func RegisterGCMetricsConstructor(constructor func() GCMetrics) {
	newPrometheusGCMetrics = constructor
}

// ObservePhase is a nil-safe wrapper around GCMetrics.ObservePhase.
func ObservePhase(m GCMetrics, phase string, duration time.Duration, err error) {
	if m != nil {
		m.ObservePhase(phase, duration, err)
	}
}

// RecordAffected is a nil-safe wrapper around GCMetrics.RecordAffected.
func RecordAffected(m GCMetrics, phase, kind string, n int) {
	if m != nil && n > 0 {
		m.RecordAffected(phase, kind, n)
	}
}

// ObserveChunk is a nil-safe wrapper around GCMetrics.ObserveChunk.
func ObserveChunk(m GCMetrics, phase string, size int, duration time.Duration) {
	if m != nil {
		m.ObserveChunk(phase, size, duration)
	}
}

// RecordRetry is a nil-safe wrapper around GCMetrics.RecordRetry.
func RecordRetry(m GCMetrics, phase string) {
	if m != nil {
		m.RecordRetry(phase)
	}
}

// RecordIntegrityWarning is a nil-safe wrapper around
// GCMetrics.RecordIntegrityWarning.
func RecordIntegrityWarning(m GCMetrics, kind string) {
	if m != nil {
		m.RecordIntegrityWarning(kind)
	}
}
