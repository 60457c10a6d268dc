package rateLimit

import (
	"context"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/dropinmorocco/booking-core/internal/adapters/redis"
)

// Decision is the outcome of counting one request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter counts requests per key in fixed windows aligned to the period. Every window has
// its own Redis key, so a window whose expiry was lost never blocks the next one.
type RateLimiter struct {
	redis *redisadapter.Cache
	now   func() time.Time
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis, now: time.Now}
}

func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

// Allow counts one request against key. When Redis cannot be reached the request is allowed
// and the error returned for the caller to log.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) (Decision, error) {
	now := rl.now()
	window := now.Truncate(period)
	bucket := "rl:" + key + ":" + strconv.FormatInt(window.Unix(), 10)

	pipe := rl.redis.Client().TxPipeline()
	incr := pipe.Incr(ctx, bucket)
	pipe.ExpireNX(ctx, bucket, period)
	if _, err := pipe.Exec(ctx); err != nil {
		return Decision{Allowed: true}, errors.Wrapf(err, "count requests for %s", key)
	}

	count := incr.Val()
	d := Decision{
		Allowed:    count <= int64(rate),
		RetryAfter: window.Add(period).Sub(now),
	}
	if left := int64(rate) - count; left > 0 {
		d.Remaining = int(left)
	}
	return d, nil
}
