package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is the shared-counter backend for multi-instance deployments.
// Fixed window per key: INCR, set the expiry on the first hit, deny once the
// count passes the limit. On redis errors it fails open so a cache outage
// cannot lock every client out.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
	limit  int
	log    *slog.Logger
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisLimiter(cfg RedisConfig, limit int, window time.Duration, log *slog.Logger) *RedisLimiter {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	return &RedisLimiter{
		rdb:    rdb,
		window: window,
		limit:  limit,
		log:    log,
	}
}

func (l *RedisLimiter) Admit(ctx context.Context, key string) (Decision, error) {
	rkey := "ratelimit:" + key

	count, err := l.rdb.Incr(ctx, rkey).Result()

	if err != nil {
		l.log.Warn("rate limit backend unavailable, failing open", "err", err)
		return Decision{Allowed: true}, nil
	}

	if count == 1 {
		// first hit opens the window
		if err := l.rdb.Expire(ctx, rkey, l.window).Err(); err != nil {
			l.log.Warn("rate limit expire failed", "key", rkey, "err", err)
		}
	}

	if count > int64(l.limit) {
		ttl, err := l.rdb.TTL(ctx, rkey).Result()

		if err != nil || ttl < 0 {
			ttl = l.window
		}

		return Decision{Allowed: false, RetryAfter: ttl}, nil
	}

	return Decision{Allowed: true}, nil
}

func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}

func (l *RedisLimiter) Close() error {
	return l.rdb.Close()
}
