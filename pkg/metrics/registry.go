// Package metrics exposes AgentFS's Prometheus instrumentation: content-store
// chunk accounting, copy-up counts, lock-conflict counts, event-bus overflow,
// and control-plane request counters/durations.
//
// Grounded on the teacher's pkg/metrics/prometheus package's nil-receiver-safe
// pattern (pkg/metrics/prometheus/cache.go): every recorder method tolerates a
// nil receiver so callers can pass a metrics.Metrics obtained before
// InitRegistry was ever called, at zero overhead, without a feature flag at
// every call site.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry enables metrics collection and returns the registry new
// recorders should register against. Calling it more than once replaces the
// prior registry.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
	enabled = true
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	mu.Lock()
	defer mu.Unlock()
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
