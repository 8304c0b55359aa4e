package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"sentra-backend/internal/config"
)

// DefaultTTL bounds how stale a cached list response may get before the
// next read goes back to the database.
const DefaultTTL = 5 * time.Minute

// Client wraps a Redis connection used as a read-through cache for list
// endpoints. A nil *Client is valid and disables caching.
type Client struct {
	rdb *redis.Client
	ttl time.Duration
}

// New connects to Redis using REDIS_URL. Returns nil (caching disabled)
// when the variable is unset.
func New() (*Client, error) {
	url := config.GetEnv("REDIS_URL", "")
	if url == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Client{rdb: rdb, ttl: config.GetEnvDuration("CACHE_TTL", DefaultTTL)}, nil
}

// NewFromRedis wraps an existing Redis client. Used by tests.
func NewFromRedis(rdb *redis.Client, ttl time.Duration) *Client {
	return &Client{rdb: rdb, ttl: ttl}
}

func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}

// Ping reports whether the cache backend is reachable. A disabled cache
// is healthy by definition.
func (c *Client) Ping(ctx context.Context) bool {
	if c == nil {
		return true
	}
	return c.rdb.Ping(ctx).Err() == nil
}

// Key builds a cache key scoped to an entity and organization. The query
// fingerprint collapses arbitrary filter combinations into a fixed-size
// suffix.
func Key(entity string, orgID uint, query string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("cache:%s:org:%d:%s", entity, orgID, hex.EncodeToString(sum[:8]))
}

// Get unmarshals a cached value into dest. Returns false on miss or when
// caching is disabled.
func (c *Client) Get(ctx context.Context, key string, dest interface{}) bool {
	if c == nil {
		return false
	}
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logrus.WithError(err).WithField("key", key).Warn("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache entry corrupt, dropping")
		c.rdb.Del(ctx, key)
		return false
	}
	return true
}

// Set stores value under key with the configured TTL. Failures are logged
// and otherwise ignored; the cache is best effort.
func (c *Client) Set(ctx context.Context, key string, value interface{}) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache marshal failed")
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("cache write failed")
	}
}

// Invalidate removes every cached entry for an entity within an
// organization. Called from mutating paths. Uses SCAN rather than KEYS.
func (c *Client) Invalidate(ctx context.Context, entity string, orgID uint) {
	if c == nil {
		return
	}
	pattern := fmt.Sprintf("cache:%s:org:%d:*", entity, orgID)

	var cursor uint64
	for {
		keys, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			logrus.WithError(err).WithField("pattern", pattern).Warn("cache invalidation scan failed")
			return
		}
		if len(keys) > 0 {
			if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
				logrus.WithError(err).WithField("pattern", pattern).Warn("cache invalidation delete failed")
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}
