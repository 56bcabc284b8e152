package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ZaBrisket/NDA-Redline-Tool-sub000/internal/core/model"
)

// RecallCache short-circuits the recall stage for near-duplicate document
// text. It is an optimization only: a miss or an error always falls through
// to a live call, never to a failure.
type RecallCache interface {
	Get(ctx context.Context, key string) ([]model.Edit, bool, error)
	Put(ctx context.Context, key string, edits []model.Edit) error
}

// RedisCache stores previously validated recall candidates keyed by the
// normalized-text fingerprint. Entries are read-only once written and
// expire after the configured TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache connects to Redis via URL and verifies the connection.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisCacheWithClient(client, ttl), nil
}

// NewRedisCacheWithClient builds a cache from an existing client.
func NewRedisCacheWithClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: "recall:",
		ttl:    ttl,
	}
}

func (c *RedisCache) key(fingerprint string) string {
	return c.prefix + fingerprint
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]model.Edit, bool, error) {
	data, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var edits []model.Edit
	if err := json.Unmarshal(data, &edits); err != nil {
		return nil, false, fmt.Errorf("cache entry decode: %w", err)
	}
	return edits, true, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, edits []model.Edit) error {
	data, err := json.Marshal(edits)
	if err != nil {
		return fmt.Errorf("cache entry encode: %w", err)
	}
	// NX keeps entries read-only once written.
	if err := c.client.SetNX(ctx, c.key(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
