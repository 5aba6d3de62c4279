package metrics

import (
	"time"
)

// BackendMetrics records calls made against a blob backend.
type BackendMetrics interface {
	// ObserveOperation records an operation ("HeadObject", "DeleteObject",
	// "ListObjectsV2", ...) with its duration and outcome.
	ObserveOperation(backend, operation string, duration time.Duration, err error)

	// RecordBytes records bytes read from a backend.
	RecordBytes(backend, operation string, bytes int64)
}

// NewBackendMetrics creates a Prometheus-backed BackendMetrics instance.
//
// Returns nil if metrics are not enabled. When nil is returned, callers
// should pass nil to the backends, which results in zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	store, err := s3.NewFromConfig(ctx, cfg, metrics.NewBackendMetrics())
func NewBackendMetrics() BackendMetrics {
	if !IsEnabled() || newPrometheusBackendMetrics == nil {
		return nil
	}
	return newPrometheusBackendMetrics()
}

// newPrometheusBackendMetrics is set by pkg/metrics/prometheus/backend.go.
var newPrometheusBackendMetrics func() BackendMetrics

// RegisterBackendMetricsConstructor registers the Prometheus backend metrics
// constructor.
func RegisterBackendMetricsConstructor(constructor func() BackendMetrics) {
	newPrometheusBackendMetrics = constructor
}

// ObserveOperation is a nil-safe wrapper around BackendMetrics.ObserveOperation.
func ObserveOperation(m BackendMetrics, backend, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(backend, operation, duration, err)
	}
}

// RecordBytes is a nil-safe wrapper around BackendMetrics.RecordBytes.
func RecordBytes(m BackendMetrics, backend, operation string, bytes int64) {
	if m != nil && bytes > 0 {
		m.RecordBytes(backend, operation, bytes)
	}
}
