package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/blobgc/pkg/metrics"
)

// backendMetrics is the Prometheus implementation of metrics.BackendMetrics.
type backendMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTransferred  *prometheus.CounterVec
}

// NewBackendMetrics creates a new Prometheus-backed BackendMetrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewBackendMetrics() metrics.BackendMetrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &backendMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_backend_operations_total",
				Help: "Total number of blob backend operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "blobgc_backend_operation_duration_milliseconds",
				Help: "Duration of blob backend operations in milliseconds",
				Buckets: []float64{
					1,    // local stat
					10,   // 10ms - fast metadata operations
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms - listing pages
					1000, // 1s
					5000, // 5s - large reads during merge
				},
			},
			[]string{"backend", "operation"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "blobgc_backend_bytes_read_total",
				Help: "Total bytes read from blob backends",
			},
			[]string{"backend", "operation"},
		),
	}
}

func (m *backendMetrics) ObserveOperation(backend, operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(backend, operation, status).Inc()
	m.operationDuration.WithLabelValues(backend, operation).Observe(float64(duration.Milliseconds()))
}

func (m *backendMetrics) RecordBytes(backend, operation string, bytes int64) {
	m.bytesTransferred.WithLabelValues(backend, operation).Add(float64(bytes))
}
