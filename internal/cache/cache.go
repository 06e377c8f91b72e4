// Package cache provides a small TTL cache for external signal payloads so
// repeated timing requests inside a TTL window do not re-fetch upstreams.
// A cache outage is never an error to callers: misses and Redis failures
// both fall through to a direct fetch.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog/log"
)

// Cache is the payload cache consumed by the signal aggregator.
type Cache interface {
	// GetJSON unmarshals the cached value for key into dest. The boolean
	// reports whether a usable value was found.
	GetJSON(ctx context.Context, key string, dest interface{}) (bool, error)
	// SetJSON stores v under key for ttl.
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	// Stats reports hit/miss counters since startup.
	Stats() Stats
	// Healthy reports whether the backing store answers a ping.
	Healthy(ctx context.Context) bool
	Close() error
}

// Counter is the minimal external counter hook; satisfied by prometheus
// counters without importing them here.
type Counter interface {
	Inc()
}

// Stats holds cache performance counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Errors int64 `json:"errors"`
}

// HitRate returns hits/(hits+misses), 0 when empty.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// RedisCache implements Cache on Redis with a key prefix per deployment.
type RedisCache struct {
	client *redis.Client
	prefix string

	hits   int64
	misses int64
	errors int64

	onHit  Counter // optional, mirrors hits to /metrics
	onMiss Counter
}

// Config configures the Redis payload cache.
type Config struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// NewRedisCache connects a payload cache to Redis.
func NewRedisCache(cfg Config) *RedisCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "engage:"
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	return &RedisCache{client: client, prefix: cfg.Prefix}
}

// NewRedisCacheWithClient wraps an existing client; used by tests with a
// mock client.
func NewRedisCacheWithClient(client *redis.Client, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "engage:"
	}
	return &RedisCache{client: client, prefix: prefix}
}

// Instrument mirrors hit and miss counts onto external counters so the
// cache shows up in the metrics exposition. Either counter may be nil.
func (c *RedisCache) Instrument(hits, misses Counter) {
	c.onHit = hits
	c.onMiss = misses
}

func (c *RedisCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&c.misses, 1)
		if c.onMiss != nil {
			c.onMiss.Inc()
		}
		return false, nil
	}
	if err != nil {
		atomic.AddInt64(&c.errors, 1)
		log.Warn().Err(err).Str("key", key).Msg("cache get failed")
		return false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		atomic.AddInt64(&c.errors, 1)
		return false, fmt.Errorf("cache decode %s: %w", key, err)
	}
	atomic.AddInt64(&c.hits, 1)
	if c.onHit != nil {
		c.onHit.Inc()
	}
	return true, nil
}

func (c *RedisCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode %s: %w", key, err)
	}
	if err := c.client.Set(ctx, c.prefix+key, raw, ttl).Err(); err != nil {
		atomic.AddInt64(&c.errors, 1)
		log.Warn().Err(err).Str("key", key).Msg("cache set failed")
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

func (c *RedisCache) Stats() Stats {
	return Stats{
		Hits:   atomic.LoadInt64(&c.hits),
		Misses: atomic.LoadInt64(&c.misses),
		Errors: atomic.LoadInt64(&c.errors),
	}
}

func (c *RedisCache) Healthy(ctx context.Context) bool {
	return c.client.Ping(ctx).Err() == nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
