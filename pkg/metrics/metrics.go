// Package metrics exposes optional Prometheus instrumentation for the
// garbage collector.
//
// Metrics are off until InitRegistry is called. Every constructor returns
// nil while disabled and every helper accepts a nil receiver, so callers
// pass metrics through unconditionally at zero cost.
//
// The Prometheus implementations live in pkg/metrics/prometheus and register
// themselves on import:
//
//	import _ "github.com/marmos91/blobgc/pkg/metrics/prometheus"
package metrics

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	registryMu sync.RWMutex
	registry   *prometheus.Registry
)

// InitRegistry enables metrics collection with a fresh registry that also
// carries the Go runtime and process collectors.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registryMu.Lock()
	registry = reg
	registryMu.Unlock()
	return reg
}

// ResetRegistry disables metrics again. Used by tests.
func ResetRegistry() {
	registryMu.Lock()
	registry = nil
	registryMu.Unlock()
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}

// GetRegistry returns the active registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry
}

// Push sends the registry to a Prometheus Pushgateway. A GC run is a batch
// job, so there is no scrape endpoint; the final state is pushed once the
// run ends. No-op when metrics are disabled.
func Push(ctx context.Context, gatewayURL, job string, grouping map[string]string) error {
	reg := GetRegistry()
	if reg == nil {
		return nil
	}

	p := push.New(gatewayURL, job).Gatherer(reg)
	for k, v := range grouping {
		p = p.Grouping(k, v)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
