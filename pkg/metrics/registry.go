// Package metrics wires the engine, revision, and write-back cache
// packages' optional Metrics seams to Prometheus. Each of those
// packages defines its own small Metrics interface and accepts nil
// for zero overhead; this package is the only place that imports
// prometheus directly, so callers who don't want metrics never pull
// in the dependency's registration machinery.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	enabled  bool
	registry *prometheus.Registry
)

// InitRegistry turns on metrics collection for the process, creating a
// fresh prometheus.Registry. Call once at startup before constructing
// any New*Metrics value; NewEngineMetrics and friends return nil until
// this has run.
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

// GetRegistry returns the process registry, or nil if metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()
	return registry
}
