package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AttemptsTotal tracks key lookup attempts per endpoint and outcome
	AttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_attempts_total",
			Help: "Total number of key lookup attempts",
		},
		[]string{"endpoint", "outcome"},
	)

	// ResolutionsTotal tracks endpoint DNS resolutions per outcome
	ResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_resolutions_total",
			Help: "Total number of endpoint DNS resolutions",
		},
		[]string{"endpoint", "outcome"},
	)

	// LookupsTotal tracks completed key lookups per outcome
	LookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keyfetch_lookups_total",
			Help: "Total number of completed key lookups",
		},
		[]string{"outcome"},
	)

	// LookupLatency tracks end-to-end key lookup latency
	LookupLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "keyfetch_lookup_latency_seconds",
			Help:    "End-to-end key lookup latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// CacheHits tracks key cache hits
	CacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyfetch_cache_hits_total",
			Help: "Total number of key cache hits",
		},
	)

	// CacheMisses tracks key cache misses
	CacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keyfetch_cache_misses_total",
			Help: "Total number of key cache misses",
		},
	)
)
