package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for penalty tracking.
var (
	airtablePenaltiesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_rate_limit_penalties_total",
		Help: "Total number of 429 responses that opened a penalty window",
	})

	airtablePenaltyBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "airtable_rate_limit_blocks_total",
		Help: "Total number of requests held back by an open penalty window",
	})

	airtableBlockedUntil = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "airtable_rate_limit_blocked_until_seconds",
		Help: "Unix time at which the current penalty window closes",
	})
)

// Tracker remembers Airtable penalty windows and holds requests back until
// they close. With a nil Redis client the state is kept in process.
type Tracker struct {
	redis  *redis.Client
	logger zerolog.Logger

	mu    sync.Mutex
	local PenaltyState
}

// NewTracker creates a new penalty tracker.
func NewTracker(redisClient *redis.Client, logger zerolog.Logger) *Tracker {
	return &Tracker{
		redis:  redisClient,
		logger: logger,
	}
}

// GetState returns the current penalty state.
// Returns an empty (unblocked) state if nothing has been recorded.
func (t *Tracker) GetState(ctx context.Context) (*PenaltyState, error) {
	if t.redis == nil {
		t.mu.Lock()
		defer t.mu.Unlock()
		state := t.local
		return &state, nil
	}

	millis, err := t.redis.Get(ctx, RedisKeyBlockedUntil).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return &PenaltyState{}, nil
		}
		return nil, fmt.Errorf("get blocked until: %w", err)
	}

	blockedUntil := time.UnixMilli(millis)
	return &PenaltyState{
		BlockedUntil: blockedUntil,
		LastUpdate:   blockedUntil,
	}, nil
}

// RecordPenalty opens (or extends) a penalty window of the given length.
// A non-positive duration uses DefaultPenalty.
func (t *Tracker) RecordPenalty(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = DefaultPenalty
	}
	now := time.Now()
	blockedUntil := now.Add(d)

	if t.redis == nil {
		t.mu.Lock()
		if blockedUntil.After(t.local.BlockedUntil) {
			t.local.BlockedUntil = blockedUntil
		}
		t.local.LastUpdate = now
		t.mu.Unlock()
	} else {
		current, err := t.GetState(ctx)
		if err != nil {
			return err
		}
		if current.BlockedUntil.After(blockedUntil) {
			return nil
		}
		// The key expires with the window so a stale lockout cannot outlive it
		if err := t.redis.Set(ctx, RedisKeyBlockedUntil, strconv.FormatInt(blockedUntil.UnixMilli(), 10), d).Err(); err != nil {
			return fmt.Errorf("store penalty state in redis: %w", err)
		}
	}

	airtablePenaltiesTotal.Inc()
	airtableBlockedUntil.Set(float64(blockedUntil.Unix()))

	t.logger.Error().
		Time("blocked_until", blockedUntil).
		Dur("penalty", d).
		Msg("Airtable rate limit exceeded - holding requests until penalty window closes")

	return nil
}

// WaitOutPenalty blocks while a penalty window is open.
// A failure to read shared state is logged and does not block the request.
func (t *Tracker) WaitOutPenalty(ctx context.Context) error {
	state, err := t.GetState(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("Failed to read penalty state")
		return nil
	}

	if !state.IsBlocked() {
		return nil
	}

	wait := state.TimeUntilReset()
	airtablePenaltyBlocksTotal.Inc()
	t.logger.Warn().
		Dur("wait_duration", wait).
		Msg("Airtable penalty window open - delaying request")

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("wait out penalty: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Gate returns a Limiter that first waits out any open penalty window and
// then waits on l.
func Gate(l Limiter, t *Tracker) Limiter {
	if t == nil {
		return l
	}
	return LimiterFunc(func(ctx context.Context) error {
		if err := t.WaitOutPenalty(ctx); err != nil {
			return err
		}
		return l.Wait(ctx)
	})
}
