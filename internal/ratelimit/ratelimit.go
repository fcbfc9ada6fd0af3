// Package ratelimit caps how many webhook messages one WhatsApp contact
// may send per window.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/aimerfeng/ReviewLink/internal/cache"
	"github.com/aimerfeng/ReviewLink/internal/config"
	"github.com/aimerfeng/ReviewLink/internal/logging"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Result contains the outcome of a rate limit check
type Result struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
}

// Limiter is a sliding window limiter keyed by contact number, backed by
// a Redis sorted set per contact (score and member are the arrival time).
type Limiter struct {
	redis  *cache.Redis
	limit  int
	window time.Duration
}

// New creates a limiter from configuration
func New(r *cache.Redis, cfg *config.RateLimitConfig) *Limiter {
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{redis: r, limit: cfg.MessagesPerWindow, window: window}
}

func key(contact string) string {
	return "ratelimit:webhook:" + contact
}

// Allow records one message from contact if it fits in the window. The
// entry is added in the same MULTI/EXEC as the count, so concurrent
// messages cannot all observe room for one more; a denied entry is
// removed again. Redis failures let the message through.
func (l *Limiter) Allow(ctx context.Context, contact string) (*Result, error) {
	now := time.Now()
	k := key(contact)
	member := fmt.Sprintf("%d-%s", now.UnixNano(), uuid.NewString())

	pipe := l.redis.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, k, "0", fmt.Sprintf("%d", now.Add(-l.window).UnixNano()))
	pipe.ZAdd(ctx, k, redis.Z{Score: float64(now.UnixNano()), Member: member})
	countCmd := pipe.ZCard(ctx, k)
	pipe.Expire(ctx, k, l.window*2)
	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("contact", logging.MaskContact(contact)).Msg("Failed to check rate limit")
		return &Result{Allowed: true, Remaining: int64(l.limit), Limit: l.limit}, nil
	}

	count := countCmd.Val()
	result := &Result{Limit: l.limit}

	if count > int64(l.limit) {
		if err := l.redis.Client.ZRem(ctx, k, member).Err(); err != nil {
			log.Warn().Err(err).Str("contact", logging.MaskContact(contact)).Msg("Failed to drop rate limit entry")
		}
		result.RetryAfter = l.window
		oldest, err := l.redis.Client.ZRangeWithScores(ctx, k, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			result.RetryAfter = time.Unix(0, int64(oldest[0].Score)).Add(l.window).Sub(now)
			if result.RetryAfter < time.Second {
				result.RetryAfter = time.Second
			}
		}
		return result, nil
	}

	result.Allowed = true
	result.Remaining = int64(l.limit) - count
	return result, nil
}

// Reset forgets the history of a contact
func (l *Limiter) Reset(ctx context.Context, contact string) error {
	return l.redis.Client.Del(ctx, key(contact)).Err()
}
