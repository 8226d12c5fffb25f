package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts tracks transport attempts per provider.
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_fetch_attempts_total",
			Help: "Total number of outbound transport attempts",
		},
		[]string{"provider"},
	)

	// FetchFailures tracks classified failures per provider and category.
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_fetch_failures_total",
			Help: "Total number of classified fetch failures",
		},
		[]string{"provider", "category"},
	)

	// FetchRetries tracks retry attempts per provider.
	FetchRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_fetch_retries_total",
			Help: "Total number of retried transport attempts",
		},
		[]string{"provider"},
	)

	// FetchLatency tracks transport call latency per provider.
	FetchLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetchd_fetch_latency_seconds",
			Help:    "Transport call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// RateLimitWaits tracks how often a dispatch had to wait for the window.
	RateLimitWaits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_rate_limit_waits_total",
			Help: "Total number of dispatches delayed by the rate-limit window",
		},
		[]string{"provider"},
	)

	// FallbackActivations tracks successful fetches served by a non-primary
	// source.
	FallbackActivations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_fallback_activations_total",
			Help: "Total number of fetches served by a fallback source",
		},
		[]string{"data_type"},
	)

	// ChainExhausted tracks chain traversals where every source failed.
	ChainExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_chain_exhausted_total",
			Help: "Total number of fallback chains exhausted without data",
		},
		[]string{"data_type"},
	)

	// DegradedCacheHits tracks reads served from the degraded cache.
	DegradedCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_degraded_cache_hits_total",
			Help: "Total number of reads served from the degraded cache",
		},
		[]string{"data_type", "stale"},
	)

	// MemoizeHits tracks caching-decorator hits per backend.
	MemoizeHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetchd_memoize_hits_total",
			Help: "Total number of memoized fetches short-circuited by cache",
		},
		[]string{"backend"},
	)
)
