package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/FIipFIop/perp-prediction/internal/shared/telemetry"
)

// RedisClient wraps a go-redis client with connection lifecycle helpers.
type RedisClient struct {
	Client *redis.Client
}

// Connect parses a redis:// URL and verifies the connection.
func Connect(ctx context.Context, redisURL string) (*RedisClient, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL is empty")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	telemetry.Info("redis.connected", map[string]any{"addr": opts.Addr, "db": opts.DB})
	return &RedisClient{Client: rdb}, nil
}

// HealthCheck pings the server.
func (r *RedisClient) HealthCheck(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RedisClient) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
		telemetry.Info("redis.closed", nil)
	}
}
