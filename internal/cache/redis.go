package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces board keys.
const DefaultPrefix = "tableflow:board"

// NewRedisClient connects to Redis and pings it with a short timeout.
// It returns nil when the server is unreachable; callers degrade to a
// MemoryCache.
func NewRedisClient(ctx context.Context, addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil
	}
	return client
}

// RedisCache stores boards as JSON with a TTL, so several API replicas
// share what the engine computed.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

var _ SnapshotCache = (*RedisCache)(nil)

// NewRedisCache wraps client. A zero ttl uses DefaultTTL.
func NewRedisCache(client *redis.Client, ttl time.Duration, prefix string) *RedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisCache{client: client, ttl: ttl, prefix: prefix}
}

// Key returns the Redis key for a restaurant.
func (c *RedisCache) Key(restaurantID string) string {
	return c.prefix + ":" + restaurantID
}

// Get reads a board. A missing key is a miss, not an error.
func (c *RedisCache) Get(ctx context.Context, restaurantID string) (Board, bool, error) {
	data, err := c.client.Get(ctx, c.Key(restaurantID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Board{}, false, nil
	}
	if err != nil {
		return Board{}, false, fmt.Errorf("redis get board: %w", err)
	}
	var b Board
	if err := json.Unmarshal(data, &b); err != nil {
		return Board{}, false, fmt.Errorf("decode board: %w", err)
	}
	return b, true, nil
}

// Put writes a board with the cache TTL.
func (c *RedisCache) Put(ctx context.Context, b Board) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("encode board: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(b.RestaurantID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set board: %w", err)
	}
	return nil
}

// Invalidate deletes the restaurant's board.
func (c *RedisCache) Invalidate(ctx context.Context, restaurantID string) error {
	if err := c.client.Del(ctx, c.Key(restaurantID)).Err(); err != nil {
		return fmt.Errorf("redis del board: %w", err)
	}
	return nil
}
