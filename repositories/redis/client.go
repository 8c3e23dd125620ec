// Package redis stores usage counters in Redis hashes
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/taskflow/ai-backend/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("repositories/redis")

// Client wraps a go-redis client
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects to Redis and verifies the connection
func NewClient(cfg config.RedisConfig, logger *zap.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connection established", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return NewClientFrom(rdb, logger), nil
}

// NewClientFrom wraps an existing go-redis client
func NewClientFrom(rdb *redis.Client, logger *zap.Logger) *Client {
	return &Client{rdb: rdb, logger: logger}
}

// Redis returns the underlying client
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// HealthCheck pings the server
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "redis.HealthCheck")
	defer span.End()

	if err := c.rdb.Ping(ctx).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool
func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	return c.rdb.Close()
}
