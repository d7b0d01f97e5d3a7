// Package proxy answers page requests from the cache, falling back to a
// rate-limited walk over the Airtable listing on a miss.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/Sternrassler/milkspot-proxy/pkg/cache"
	"github.com/Sternrassler/milkspot-proxy/pkg/logging"
	"github.com/Sternrassler/milkspot-proxy/pkg/pagination"
	"github.com/Sternrassler/milkspot-proxy/pkg/ratelimit"
	"github.com/Sternrassler/milkspot-proxy/pkg/records"
)

// ErrInvalidRequest is returned for an empty path or a negative page.
var ErrInvalidRequest = errors.New("invalid request")

// Prometheus metrics for request coordination.
var (
	proxyRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "milkspot_proxy_requests_total",
		Help: "Total page requests by table, cache result and upstream outcome",
	}, []string{"table", "cache", "outcome"})

	proxyRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "milkspot_proxy_request_duration_seconds",
		Help:    "Page request duration in seconds by table and cache result",
		Buckets: []float64{0.001, 0.01, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"table", "cache"})

	proxyPagesFetched = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "milkspot_proxy_pages_fetched",
		Help:    "Upstream pages requested per cache miss",
		Buckets: []float64{1, 2, 3, 5, 10, 20, 50},
	}, []string{"table"})

	proxyCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "milkspot_proxy_coalesced_total",
		Help: "Cache misses served by another request's upstream walk",
	}, []string{"table"})
)

// Request is one inbound page request.
type Request struct {
	// Path is the inbound request path; it is the cache key source
	Path string

	// Page is the zero-based target page
	Page int
}

// Config holds coordinator configuration.
type Config struct {
	// FailOnUpstreamError answers 502 (503 for a full limiter queue)
	// instead of an empty page when the upstream walk fails
	FailOnUpstreamError bool

	// RequestTimeout bounds one upstream walk, limiter waits included.
	// 0 leaves the walk unbounded; each upstream HTTP call is still bounded
	// by the client timeout, so a walk cannot hang on a dead connection.
	RequestTimeout time.Duration

	// CacheTTL expires cached pages; 0 keeps them forever
	CacheTTL time.Duration
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{}
}

// Result is the reply to one Request.
type Result struct {
	// Status is the HTTP status to answer with
	Status int

	// Records is the page to answer with; never nil
	Records records.ResultSet

	// CacheHit reports whether Records came from the store
	CacheHit bool

	// Outcome is the upstream walk outcome; empty on a cache hit
	Outcome pagination.Outcome

	// PagesFetched counts upstream pages requested for this reply
	PagesFetched int

	// Err is set when the walk failed or the request was invalid
	Err error
}

// Coordinator serves page requests from a Store and an upstream Source.
type Coordinator struct {
	store  cache.Store
	source Source
	config Config
	flight singleflight.Group
	logger zerolog.Logger
}

// New creates a coordinator.
func New(store cache.Store, source Source, cfg Config) (*Coordinator, error) {
	if store == nil {
		return nil, fmt.Errorf("cache store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("upstream source is required")
	}
	if cfg.RequestTimeout < 0 {
		return nil, fmt.Errorf("request timeout must not be negative (got %s)", cfg.RequestTimeout)
	}

	return &Coordinator{
		store:  store,
		source: source,
		config: cfg,
		logger: logging.NewLogger(logging.ComponentCoordinator),
	}, nil
}

// Handle answers req for table, listing through view on a cache miss.
//
// A hit returns the stored page without touching the upstream. A miss walks
// the upstream to req.Page; Found and Exhausted results are written back,
// Failed results are not. Concurrent misses on the same key share one walk.
func (c *Coordinator) Handle(ctx context.Context, req Request, table records.Table, view string) Result {
	start := time.Now()

	if req.Path == "" || req.Page < 0 || !table.Valid() {
		return Result{
			Status:  http.StatusBadRequest,
			Records: records.ResultSet{},
			Err:     fmt.Errorf("%w: path %q page %d", ErrInvalidRequest, req.Path, req.Page),
		}
	}

	key := cache.NewKey(req.Path)
	logger := c.logger.With().
		Str("table", table.Name()).
		Str("path", req.Path).
		Int("page", req.Page).
		Logger()

	if rs, ok := c.lookup(ctx, key, logger); ok {
		proxyRequestsTotal.WithLabelValues(table.Name(), "hit", "").Inc()
		proxyRequestDuration.WithLabelValues(table.Name(), "hit").Observe(time.Since(start).Seconds())
		return Result{Status: http.StatusOK, Records: rs, CacheHit: true}
	}

	walk, err := c.fetch(ctx, key, req, table, view, logger)
	if err != nil {
		walk = pagination.Result{Outcome: pagination.Failed, Records: records.ResultSet{}, Err: err}
	}

	proxyRequestsTotal.WithLabelValues(table.Name(), "miss", string(walk.Outcome)).Inc()
	proxyRequestDuration.WithLabelValues(table.Name(), "miss").Observe(time.Since(start).Seconds())

	result := Result{
		Status:       http.StatusOK,
		Records:      walk.Records,
		Outcome:      walk.Outcome,
		PagesFetched: walk.PagesFetched,
		Err:          walk.Err,
	}
	if result.Records == nil {
		result.Records = records.ResultSet{}
	}

	if walk.Outcome == pagination.Failed {
		logger.Error().
			Err(walk.Err).
			Dur("duration", time.Since(start)).
			Msg("Upstream walk failed")
		if c.config.FailOnUpstreamError {
			result.Status = http.StatusBadGateway
			if errors.Is(walk.Err, ratelimit.ErrQueueFull) {
				result.Status = http.StatusServiceUnavailable
			}
		}
	}
	return result
}

// lookup reads key from the store. Any store failure counts as a miss.
func (c *Coordinator) lookup(ctx context.Context, key cache.Key, logger zerolog.Logger) (records.ResultSet, bool) {
	entry, err := c.store.Get(ctx, key)
	switch {
	case err == nil && entry != nil:
		logger.Debug().Str("key", key.String()).Msg("Cache hit")
		if entry.Records == nil {
			return records.ResultSet{}, true
		}
		return entry.Records, true
	case err == nil, errors.Is(err, cache.ErrCacheMiss):
		logger.Debug().Str("key", key.String()).Msg("Cache miss")
	default:
		logger.Warn().Err(err).Str("key", key.String()).Msg("Cache read failed, treating as miss")
	}
	return nil, false
}

// fetch runs one upstream walk per key at a time. Waiters that arrive while
// a walk is in flight receive its result.
func (c *Coordinator) fetch(ctx context.Context, key cache.Key, req Request, table records.Table, view string, logger zerolog.Logger) (pagination.Result, error) {
	ch := c.flight.DoChan(key.String(), func() (any, error) {
		// The walk outlives a single caller's cancellation so that
		// coalesced waiters still get an answer.
		walkCtx := context.WithoutCancel(ctx)
		if c.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			walkCtx, cancel = context.WithTimeout(walkCtx, c.config.RequestTimeout)
			defer cancel()
		}
		return c.walk(walkCtx, key, req, table, view, logger), nil
	})

	select {
	case res := <-ch:
		if res.Shared {
			proxyCoalescedTotal.WithLabelValues(table.Name()).Inc()
		}
		return res.Val.(pagination.Result), nil
	case <-ctx.Done():
		return pagination.Result{}, fmt.Errorf("waiting for upstream: %w", ctx.Err())
	}
}

// walk enumerates upstream pages and writes Found or Exhausted pages back.
func (c *Coordinator) walk(ctx context.Context, key cache.Key, req Request, table records.Table, view string, logger zerolog.Logger) pagination.Result {
	start := time.Now()
	it := c.source.Open(table, view)
	res := pagination.Walk(ctx, it, table, req.Page, logger)
	proxyPagesFetched.WithLabelValues(table.Name()).Observe(float64(res.PagesFetched))

	logger.Info().
		Str("outcome", string(res.Outcome)).
		Int("pages", res.PagesFetched).
		Int("records", len(res.Records)).
		Dur("duration", time.Since(start)).
		Msg("Upstream walk finished")

	if res.Outcome == pagination.Failed {
		return res
	}

	if err := c.store.Set(ctx, key, cache.NewEntry(res.Records, c.config.CacheTTL)); err != nil {
		logger.Warn().Err(err).Str("key", key.String()).Msg("Cache write failed")
	}
	return res
}
