package gateway

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const dedupKeyPrefix = "triage:dedup:"

// RedisDedup implements DedupCache on a shared Redis instance. Every error
// degrades to a miss; the store remains the authority on duplicates.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisDedup wraps a Redis client as a dedup cache.
func NewRedisDedup(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisDedup {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl, logger: logger}
}

// Lookup returns the cached ticket id for a source message, if any.
func (r *RedisDedup) Lookup(ctx context.Context, sourceMessageID string) (string, bool) {
	val, err := r.client.Get(ctx, dedupKeyPrefix+sourceMessageID).Result()
	if err != nil {
		if err != redis.Nil {
			r.logger.Warn("dedup cache lookup failed", zap.Error(err))
		}
		return "", false
	}
	return val, true
}

// Remember records the winning ticket id for a source message. SetNX keeps
// the first writer's mapping if two instances race.
func (r *RedisDedup) Remember(ctx context.Context, sourceMessageID, ticketID string) {
	if err := r.client.SetNX(ctx, dedupKeyPrefix+sourceMessageID, ticketID, r.ttl).Err(); err != nil {
		r.logger.Warn("dedup cache store failed", zap.Error(err))
	}
}
