// Package metrics registers the resolver's Prometheus collectors and
// exposes them over HTTP. Every metric here is a side channel: recording a
// sample never alters resolution behavior or return values.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector the resolver exposes. Construct one with
// NewRegistry and pass it down to the Cache, Delegator, and Processor.
type Registry struct {
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	CacheSize   prometheus.Gauge

	UpstreamLatency *prometheus.HistogramVec

	QueriesTotal *prometheus.CounterVec

	RateLimitDrops prometheus.Counter
}

// NewRegistry creates and registers every collector against its own
// prometheus.Registry, independent of the global default registry.
func NewRegistry() (*Registry, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	r := &Registry{
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_cache_hits_total",
			Help: "Number of cache lookups that returned at least one resource.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_cache_misses_total",
			Help: "Number of cache lookups that returned no resources.",
		}),
		CacheSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "dns_cache_entries",
			Help: "Current number of entries held in the cache.",
		}),
		UpstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dns_delegator_upstream_latency_seconds",
			Help:    "Round-trip time of a single upstream probe.",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "transport"}),
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dns_queries_total",
			Help: "Completed queries, labeled by final rcode.",
		}, []string{"rcode"}),
		RateLimitDrops: factory.NewCounter(prometheus.CounterOpts{
			Name: "dns_rate_limit_drops_total",
			Help: "Queries dropped by the source rate limiter before reaching a Processor.",
		}),
	}

	return r, reg
}

// Handler returns an http.Handler serving these metrics in the Prometheus
// exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
