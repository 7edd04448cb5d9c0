// Package metrics exposes counters for cache and fetch activity.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors registered by the state manager.
type Metrics struct {
	RemoteFetches      *prometheus.CounterVec
	CacheInvalidations prometheus.Counter
	ResolvedCacheHits  prometheus.Counter
	ResolvedCacheMiss  prometheus.Counter
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RemoteFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "praxis",
			Name:      "remote_fetches_total",
			Help:      "Remote tracker fetches, by data kind.",
		}, []string{"kind"}),
		CacheInvalidations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "praxis",
			Name:      "cache_invalidations_total",
			Help:      "Cache invalidations from head, config, or manual triggers.",
		}),
		ResolvedCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "praxis",
			Name:      "resolved_issue_cache_hits_total",
			Help:      "Resolved-issue LRU cache hits.",
		}),
		ResolvedCacheMiss: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "praxis",
			Name:      "resolved_issue_cache_misses_total",
			Help:      "Resolved-issue LRU cache misses.",
		}),
	}
}

// Nop returns metrics backed by a private registry, for callers that do not
// scrape.
func Nop() *Metrics {
	return New(prometheus.NewRegistry())
}
