package vapi

import (
	"context"
	"time"

	"intake-platform/pkg/utils"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter caps concurrent intake calls per project using the shared
// concurrency-cap scripts. The TTL covers vendors that never deliver a
// call-ended event; the slot expires instead of leaking.
type RedisLimiter struct {
	rdb   *redis.Client
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb *redis.Client, limit int, ttl time.Duration) *RedisLimiter {
	if limit <= 0 {
		limit = 1
	}
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context, projectID string) (bool, error) {
	return utils.AcquireConcurrencyCap(ctx, l.rdb, capKey(projectID), l.limit, l.ttl)
}

func (l *RedisLimiter) Release(ctx context.Context, projectID string) error {
	return utils.ReleaseConcurrencyCap(ctx, l.rdb, capKey(projectID))
}

func capKey(projectID string) string {
	return "intake:calls:" + projectID
}
