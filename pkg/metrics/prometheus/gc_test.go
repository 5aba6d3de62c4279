package prometheus

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/blobgc/pkg/metrics"
)

func TestDisabledMetricsAreNil(t *testing.T) {
	metrics.ResetRegistry()
	assert.Nil(t, NewGCMetrics())
	assert.Nil(t, NewBackendMetrics())
	assert.Nil(t, metrics.NewGCMetrics())

	// nil-safe helpers must not panic
	metrics.ObservePhase(nil, "merge", time.Second, nil)
	metrics.RecordAffected(nil, "merge", "aliases_repointed", 3)
	metrics.ObserveOperation(nil, "remote", "HeadObject", time.Millisecond, nil)
}

func TestGCMetrics(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := metrics.NewGCMetrics()
	require.NotNil(t, m)

	metrics.ObservePhase(m, "expire", time.Second, nil)
	metrics.ObservePhase(m, "expire", time.Second, errors.New("boom"))
	metrics.RecordAffected(m, "expire", "aliases_expired", 5)
	metrics.RecordAffected(m, "expire", "aliases_expired", 0)
	metrics.RecordRetry(m, "prune_aliases")
	metrics.RecordIntegrityWarning(m, "missing_row")

	impl := m.(*gcMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.phaseRuns.WithLabelValues("expire", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.phaseRuns.WithLabelValues("expire", "error")))
	assert.Equal(t, 5.0, testutil.ToFloat64(impl.affected.WithLabelValues("expire", "aliases_expired")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.retries.WithLabelValues("prune_aliases")))
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.integrityWarnings.WithLabelValues("missing_row")))
}

func TestBackendMetrics(t *testing.T) {
	metrics.InitRegistry()
	defer metrics.ResetRegistry()

	m := metrics.NewBackendMetrics()
	require.NotNil(t, m)

	metrics.ObserveOperation(m, "remote", "DeleteObject", 12*time.Millisecond, nil)
	metrics.RecordBytes(m, "remote", "GetObject", 4096)

	impl := m.(*backendMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(impl.operationsTotal.WithLabelValues("remote", "DeleteObject", "success")))
	assert.Equal(t, 4096.0, testutil.ToFloat64(impl.bytesTransferred.WithLabelValues("remote", "GetObject")))
}
