package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/parcelview/geofusion/internal/infrastructure/monitoring/logging"
	"github.com/parcelview/geofusion/pkg/errors"
)

var (
	ErrCacheMiss           = errors.New(errors.ErrCodeNotFound, "cache miss")
	ErrSerializationFailed = errors.New(errors.ErrCodeSerialization, "serialization failed")
)

// Cache is the JSON-serialized cache used for layer feature sets.  GetOrSet
// collapses concurrent loads of the same key through singleflight so a cold
// popular layer is fetched from the dataset store once, not per-request.
type Cache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error
	Ping(ctx context.Context) error
}

type redisCache struct {
	client     *Client
	logger     logging.Logger
	prefix     string
	defaultTTL time.Duration
	jitter     func(time.Duration) time.Duration
	group      singleflight.Group
}

// CacheOption configures a Cache.
type CacheOption func(*redisCache)

func WithPrefix(prefix string) CacheOption {
	return func(c *redisCache) { c.prefix = prefix }
}

func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *redisCache) { c.defaultTTL = ttl }
}

// NewCache builds a Cache on top of client.
func NewCache(client *Client, log logging.Logger, opts ...CacheOption) Cache {
	c := &redisCache{
		client:     client,
		logger:     log,
		prefix:     "geofusion:",
		defaultTTL: 10 * time.Minute,
		jitter:     jitterTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *redisCache) fullKey(key string) string {
	return c.prefix + key
}

// jitterTTL spreads expirations +/- 10% so cached layers do not all expire
// in the same instant.
func jitterTTL(ttl time.Duration) time.Duration {
	if ttl == 0 {
		return 0
	}
	jitter := float64(ttl) * 0.1 * (rand.Float64()*2 - 1)
	return ttl + time.Duration(jitter)
}

func (c *redisCache) Get(ctx context.Context, key string, dest interface{}) error {
	data, err := c.client.Get(ctx, c.fullKey(key)).Bytes()
	if err == redis.Nil {
		return ErrCacheMiss
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to get from cache")
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed
	}
	return nil
}

func (c *redisCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if ttl == 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(value)
	if err != nil {
		return ErrSerializationFailed
	}
	return c.client.Set(ctx, c.fullKey(key), data, c.jitter(ttl)).Err()
}

func (c *redisCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	fullKeys := make([]string, len(keys))
	for i, k := range keys {
		fullKeys[i] = c.fullKey(k)
	}
	return c.client.Del(ctx, fullKeys...).Err()
}

func (c *redisCache) Exists(ctx context.Context, key string) (bool, error) {
	val, err := c.client.Exists(ctx, c.fullKey(key)).Result()
	return val > 0, err
}

func (c *redisCache) GetOrSet(ctx context.Context, key string, dest interface{}, ttl time.Duration, loader func(ctx context.Context) (interface{}, error)) error {
	err := c.Get(ctx, key, dest)
	if err == nil {
		return nil
	}
	if err != ErrCacheMiss {
		// A read failure degrades to load-through rather than failing the
		// caller's run.
		c.logger.Warn("cache read failed, loading from source", logging.String("key", key), logging.Err(err))
	}

	val, err, _ := c.group.Do(key, func() (interface{}, error) {
		v, loadErr := loader(ctx)
		if loadErr != nil {
			return nil, loadErr
		}
		if setErr := c.Set(ctx, key, v, ttl); setErr != nil {
			// A write failure degrades to load-through; the value is still
			// served to the caller.
			c.logger.Warn("failed to populate cache", logging.String("key", key), logging.Err(setErr))
		}
		return v, nil
	})
	if err != nil {
		return err
	}

	data, err := json.Marshal(val)
	if err != nil {
		return ErrSerializationFailed
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return ErrSerializationFailed
	}
	return nil
}

func (c *redisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx)
}
