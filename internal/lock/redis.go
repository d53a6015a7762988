package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"sessionbook/internal/metrics"
)

const (
	defaultLeaseTTL   = 10 * time.Second
	defaultRetryDelay = 20 * time.Millisecond
)

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker holds leases as SET NX PX keys shared by all instances.
type RedisLocker struct {
	client     redis.UniversalClient
	prefix     string
	ttl        time.Duration
	retryDelay time.Duration
	logger     zerolog.Logger
}

// NewRedisLocker creates a redis-backed locker. ttl bounds how long a crashed
// holder can block a key.
func NewRedisLocker(client redis.UniversalClient, ttl time.Duration, logger zerolog.Logger) *RedisLocker {
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLocker{
		client:     client,
		prefix:     "sessionbook:lock:",
		ttl:        ttl,
		retryDelay: defaultRetryDelay,
		logger:     logger.With().Str("component", "redis_lock").Logger(),
	}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	redisKey := l.prefix + key
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				metrics.IncLockAcquisition("redis", "timeout")
				return nil, busy(key, ctxErr)
			}
			metrics.IncLockAcquisition("redis", "error")
			return nil, fmt.Errorf("redis setnx %s: %w", redisKey, err)
		}
		if ok {
			metrics.IncLockAcquisition("redis", "ok")
			return l.releaser(redisKey, token), nil
		}

		timer := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			metrics.IncLockAcquisition("redis", "timeout")
			return nil, busy(key, ctx.Err())
		case <-timer.C:
		}
	}
}

func (l *RedisLocker) releaser(redisKey, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := releaseScript.Run(ctx, l.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger.Error().Err(err).Str("key", redisKey).Msg("release lock")
			}
		})
	}
}
