// Package ratelimit keeps outgoing Airtable requests under the API quota.
//
// Airtable allows 5 requests per second per base and suspends API access
// for 30 seconds when the limit is exceeded. Every upstream page request
// therefore waits on a Limiter before it is sent. One Limiter is created at
// process start and shared by all requests.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// DefaultMinInterval spaces requests just under 5 per second.
const DefaultMinInterval = 1050 * time.Millisecond / 5

// ErrQueueFull is returned by Wait when MaxQueue callers are already waiting.
var ErrQueueFull = errors.New("rate limiter queue full")

// Prometheus metrics for request spacing.
var (
	limiterWaitSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "milkspot_ratelimit_wait_seconds",
		Help:    "Time spent waiting for an upstream request slot",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"limiter"})

	limiterQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "milkspot_ratelimit_queue_depth",
		Help: "Number of callers currently waiting for an upstream request slot",
	}, []string{"limiter"})

	limiterRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "milkspot_ratelimit_rejected_total",
		Help: "Total number of callers rejected because the wait queue was full",
	}, []string{"limiter"})
)

// Limiter gates the start of upstream requests.
type Limiter interface {
	// Wait blocks until the caller may start one upstream request.
	Wait(ctx context.Context) error
}

// LimiterFunc adapts a function to the Limiter interface.
type LimiterFunc func(ctx context.Context) error

// Wait calls f(ctx).
func (f LimiterFunc) Wait(ctx context.Context) error {
	return f(ctx)
}

// Config holds limiter configuration.
type Config struct {
	// MinInterval is the minimum time between two request starts.
	MinInterval time.Duration

	// MaxQueue bounds the number of waiting callers. 0 means unbounded:
	// under sustained overload the queue grows without limit and latency
	// grows with it.
	MaxQueue int
}

// DefaultConfig returns the configuration matching Airtable's published quota.
func DefaultConfig() Config {
	return Config{
		MinInterval: DefaultMinInterval,
		MaxQueue:    0,
	}
}

// queue counts waiters and enforces MaxQueue.
type queue struct {
	name    string
	max     int
	waiting atomic.Int64
}

func (q *queue) enter() error {
	n := q.waiting.Add(1)
	limiterQueueDepth.WithLabelValues(q.name).Set(float64(n))
	if q.max > 0 && n > int64(q.max) {
		q.leave()
		limiterRejectedTotal.WithLabelValues(q.name).Inc()
		return ErrQueueFull
	}
	return nil
}

func (q *queue) leave() {
	n := q.waiting.Add(-1)
	limiterQueueDepth.WithLabelValues(q.name).Set(float64(n))
}

// Waiting returns the number of callers currently blocked in Wait.
func (q *queue) Waiting() int {
	return int(q.waiting.Load())
}

// IntervalLimiter spaces request starts within one process.
// Waiters are served in reservation order.
type IntervalLimiter struct {
	queue
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewInterval creates a process-local limiter.
func NewInterval(cfg Config, logger zerolog.Logger) *IntervalLimiter {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	return &IntervalLimiter{
		queue:   queue{name: "local", max: cfg.MaxQueue},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		logger:  logger,
	}
}

// Wait blocks until the next request slot or until ctx is done.
func (l *IntervalLimiter) Wait(ctx context.Context) error {
	if err := l.enter(); err != nil {
		l.logger.Warn().
			Int("max_queue", l.max).
			Msg("Rate limiter queue full - rejecting request")
		return err
	}
	defer l.leave()

	// Reserve instead of rate.Limiter.Wait: Wait refuses up front when the
	// slot lies past the ctx deadline, which would reject a caller that
	// the queue is meant to delay.
	start := time.Now()
	r := l.limiter.Reserve()
	if delay := r.Delay(); delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			r.Cancel()
			return fmt.Errorf("wait for request slot: %w", ctx.Err())
		case <-timer.C:
		}
	}

	waited := time.Since(start)
	limiterWaitSeconds.WithLabelValues(l.name).Observe(waited.Seconds())
	l.logger.Debug().Dur("waited", waited).Msg("Request slot acquired")
	return nil
}
