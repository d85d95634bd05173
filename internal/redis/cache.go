package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/replay-browser/internal/config"
	"github.com/replay-browser/internal/domain"
)

// Cache provides the short-lived leaderboard snapshot cache. Snapshots are
// derived read models: losing one costs a recompute, nothing more, so cache
// read failures degrade to a miss.
type Cache struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCache creates a new snapshot cache
func NewCache(cfg *config.RedisConfig, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}

	return &Cache{
		client: client,
		logger: logger,
	}, nil
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}

// Client returns the underlying Redis client
func (c *Cache) Client() *redis.Client {
	return c.client
}

// snapshotKey returns the Redis key for a leaderboard snapshot
func (c *Cache) snapshotKey(key string) string {
	return fmt.Sprintf("leaderboard:snapshot:%s", key)
}

// GetLeaderboardData returns a cached snapshot if one exists. The boolean
// reports a hit; errors are returned only for payloads that exist but
// cannot be decoded.
func (c *Cache) GetLeaderboardData(ctx context.Context, key string) (*domain.LeaderboardData, bool, error) {
	raw, err := c.client.Get(ctx, c.snapshotKey(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		c.logger.Warn("snapshot cache read failed", "key", key, "error", err)
		return nil, false, nil
	}

	var data domain.LeaderboardData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, fmt.Errorf("unmarshaling snapshot: %w", err)
	}
	return &data, true, nil
}

// SetLeaderboardData stores a snapshot with the given TTL.
func (c *Cache) SetLeaderboardData(ctx context.Context, key string, data domain.LeaderboardData, ttl time.Duration) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshaling snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.snapshotKey(key), raw, ttl).Err(); err != nil {
		return fmt.Errorf("setting snapshot: %w", err)
	}
	return nil
}

// InvalidateLeaderboardData drops a cached snapshot, forcing the next read
// to recompute. Used after ingesting new replays.
func (c *Cache) InvalidateLeaderboardData(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.snapshotKey(key)).Err(); err != nil {
		return fmt.Errorf("invalidating snapshot: %w", err)
	}
	return nil
}
