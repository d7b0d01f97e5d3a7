// Package metrics exposes the Prometheus registry used by the milkspot proxy.
// All metrics are defined in their respective packages (cache, ratelimit,
// airtable, proxy) to maintain modularity and avoid circular dependencies.
//
// This package provides the /metrics handler and a reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by the proxy.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Coordinator Metrics (pkg/proxy):
//   - milkspot_proxy_requests_total{table, cache, outcome} (Counter): Page requests by cache result and walk outcome
//   - milkspot_proxy_request_duration_seconds{table, cache} (Histogram): Page request duration
//   - milkspot_proxy_pages_fetched{table} (Histogram): Upstream pages requested per cache miss
//   - milkspot_proxy_coalesced_total{table} (Counter): Misses served by another request's walk
//
// Cache Metrics (pkg/cache):
//   - milkspot_cache_hits_total{backend} (Counter): Cache hits by backend (disk, redis)
//   - milkspot_cache_misses_total{backend} (Counter): Cache misses by backend
//   - milkspot_cache_written_bytes_total{backend} (Counter): Bytes written to the cache
//   - milkspot_cache_errors_total{backend, operation} (Counter): Cache operation errors
//
// Rate Limit Metrics (pkg/ratelimit):
//   - milkspot_ratelimit_wait_seconds{limiter} (Histogram): Time spent waiting for a request slot
//   - milkspot_ratelimit_queue_depth{limiter} (Gauge): Callers currently waiting
//   - milkspot_ratelimit_rejected_total{limiter} (Counter): Callers rejected by a full queue
//   - airtable_rate_limit_penalties_total (Counter): 429 responses that opened a penalty window
//   - airtable_rate_limit_blocks_total (Counter): Requests held back by a penalty window
//   - airtable_rate_limit_blocked_until_seconds (Gauge): Unix time the penalty window closes
//
// Request Metrics (pkg/airtable):
//   - airtable_requests_total{table, status} (Counter): Total requests by table and HTTP status
//   - airtable_request_duration_seconds{table} (Histogram): Request duration by table
//   - airtable_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//
// Retry Metrics (pkg/airtable):
//   - airtable_retries_total{error_class} (Counter): Retry attempts by error class
//   - airtable_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - airtable_retry_exhausted_total{error_class} (Counter): Requests that exhausted max retries
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(milkspot_cache_hits_total[5m])) /
//   (sum(rate(milkspot_cache_hits_total[5m])) + sum(rate(milkspot_cache_misses_total[5m])))
//
//   # Failed walks answered with an empty page
//   sum(rate(milkspot_proxy_requests_total{outcome="failed"}[5m]))
//
//   # Penalty windows opened
//   increase(airtable_rate_limit_penalties_total[1h]) > 0
//
//   # P95 limiter wait
//   histogram_quantile(0.95, rate(milkspot_ratelimit_wait_seconds_bucket[5m]))
//
//   # P95 Request Latency
//   histogram_quantile(0.95, rate(airtable_request_duration_seconds_bucket[5m]))
