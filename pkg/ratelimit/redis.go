package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisKeySlot holds the most recent request slot. It expires after MinInterval.
const RedisKeySlot = "airtable:rate_limit:slot"

// minPoll is the shortest sleep between slot attempts.
const minPoll = 5 * time.Millisecond

// RedisLimiter spaces request starts across every proxy instance that
// shares a Redis. A slot is claimed with SET NX PX; losers sleep for the
// remaining TTL and retry. Unlike IntervalLimiter, waiters are not served
// in arrival order.
type RedisLimiter struct {
	queue
	redis    *redis.Client
	interval time.Duration
	logger   zerolog.Logger
}

// NewRedis creates a limiter whose state lives in Redis.
func NewRedis(redisClient *redis.Client, cfg Config, logger zerolog.Logger) *RedisLimiter {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	return &RedisLimiter{
		queue:    queue{name: "redis", max: cfg.MaxQueue},
		redis:    redisClient,
		interval: cfg.MinInterval,
		logger:   logger,
	}
}

// Wait claims the shared request slot, sleeping while another caller holds it.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	if err := l.enter(); err != nil {
		l.logger.Warn().
			Int("max_queue", l.max).
			Msg("Rate limiter queue full - rejecting request")
		return err
	}
	defer l.leave()

	start := time.Now()
	for {
		claimed, err := l.redis.SetNX(ctx, RedisKeySlot, start.UnixNano(), l.interval).Result()
		if err != nil {
			return fmt.Errorf("claim request slot: %w", err)
		}
		if claimed {
			waited := time.Since(start)
			limiterWaitSeconds.WithLabelValues(l.name).Observe(waited.Seconds())
			l.logger.Debug().Dur("waited", waited).Msg("Shared request slot acquired")
			return nil
		}

		remaining, err := l.redis.PTTL(ctx, RedisKeySlot).Result()
		if err != nil {
			return fmt.Errorf("read request slot ttl: %w", err)
		}
		if remaining < minPoll {
			remaining = minPoll
		}

		timer := time.NewTimer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("wait for request slot: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
