package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisConfig mirrors the connection knobs exposed through the environment.
type RedisConfig struct {
	URL          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	DialTimeout  time.Duration
}

// NewRedisClient parses the URL, applies timeouts and pings the server.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, err
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Redis is a string cache stored under a key prefix. Failures are logged and
// reported as misses so callers fall back to the source of truth.
type Redis struct {
	rdb    redis.Cmdable
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedis wraps an existing client.
func NewRedis(rdb redis.Cmdable, prefix string, ttl time.Duration, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, prefix: prefix, ttl: ttl, logger: logger}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get returns the cached value, or false on miss or error.
func (r *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis: get failed", zap.String("key", r.key(key)), zap.Error(err))
		}
		return "", false
	}
	return v, true
}

// Set stores value with the configured TTL.
func (r *Redis) Set(ctx context.Context, key string, value string) {
	if err := r.rdb.Set(ctx, r.key(key), value, r.ttl).Err(); err != nil {
		r.logger.Warn("redis: set failed", zap.String("key", r.key(key)), zap.Error(err))
	}
}

// Delete removes the key.
func (r *Redis) Delete(ctx context.Context, key string) {
	if err := r.rdb.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Warn("redis: delete failed", zap.String("key", r.key(key)), zap.Error(err))
	}
}
