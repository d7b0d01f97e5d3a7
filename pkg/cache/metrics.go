package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by backend (disk, redis)
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkspot_cache_hits_total",
			Help: "Total number of page cache hits",
		},
		[]string{"backend"},
	)

	// CacheMisses tracks cache misses by backend
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkspot_cache_misses_total",
			Help: "Total number of page cache misses",
		},
		[]string{"backend"},
	)

	// CacheWrittenBytes tracks bytes persisted by backend
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkspot_cache_written_bytes_total",
			Help: "Total number of bytes written to the page cache",
		},
		[]string{"backend"},
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkspot_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"backend", "operation"}, // "get", "set", "delete"
	)
)
