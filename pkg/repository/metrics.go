package repository

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus metrics of one or more repositories.
// Each Metrics owns its registry, so several can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	Hits      prometheus.Counter
	Misses    prometheus.Counter
	Loads     prometheus.Counter
	Evictions prometheus.Counter
	Errors    *prometheus.CounterVec

	StoreSize prometheus.Gauge
	CacheSize prometheus.Gauge
}

// NewMetrics creates and registers the repository metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		Hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Lookups answered from the cache region",
		}),
		Misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Lookups not found in the cache region",
		}),
		Loads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_loads_total",
			Help:      "Records computed from the authoritative store",
		}),
		Evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_evictions_total",
			Help:      "Entries evicted from the cache region by writes",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failed repository operations by operation and error kind",
		}, []string{"op", "kind"}),
		StoreSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_size",
			Help:      "Records in the authoritative store at the last sample",
		}),
		CacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cache_size",
			Help:      "Entries in the cache region at the last sample",
		}),
	}

	registry.MustRegister(m.Hits, m.Misses, m.Loads, m.Evictions, m.Errors, m.StoreSize, m.CacheSize)
	return m
}

// Registry returns the registry the metrics are registered in.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
