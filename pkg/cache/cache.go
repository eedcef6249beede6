// Package cache provides the optional quote cache consulted by the swap
// registry. Redis-backed when enabled, no-op otherwise; a cache failure is
// always treated as a miss, never an error.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridian-labs/solagent/internal/core/domain"
)

// QuoteCache stores short-lived quotes keyed by (inputMint, outputMint,
// amount).
type QuoteCache interface {
	Get(ctx context.Context, inputMint, outputMint string, amountIn uint64) (*domain.Quote, bool)
	Set(ctx context.Context, quote *domain.Quote, ttl time.Duration)
	Close() error
}

// NoOpCache satisfies QuoteCache without storing anything. Used whenever
// Redis is not configured.
type NoOpCache struct{}

func (NoOpCache) Get(context.Context, string, string, uint64) (*domain.Quote, bool) { return nil, false }
func (NoOpCache) Set(context.Context, *domain.Quote, time.Duration)                 {}
func (NoOpCache) Close() error                                                      { return nil }

// RedisConfig configures the redis-backed cache.
type RedisConfig struct {
	Address   string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	UseTLS    bool
}

// RedisCache stores quotes in redis with a per-entry TTL.
type RedisCache struct {
	client *redis.Client
	prefix string
}

// NewRedisCache connects and pings the configured redis instance.
func NewRedisCache(cfg *RedisConfig) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "solagent:quote:"
	}
	return &RedisCache{client: client, prefix: prefix}, nil
}

func (c *RedisCache) key(inputMint, outputMint string, amountIn uint64) string {
	return fmt.Sprintf("%s%s:%s:%d", c.prefix, inputMint, outputMint, amountIn)
}

func (c *RedisCache) Get(ctx context.Context, inputMint, outputMint string, amountIn uint64) (*domain.Quote, bool) {
	raw, err := c.client.Get(ctx, c.key(inputMint, outputMint, amountIn)).Bytes()
	if err != nil {
		return nil, false
	}
	var quote domain.Quote
	if err := json.Unmarshal(raw, &quote); err != nil {
		return nil, false
	}
	return &quote, true
}

func (c *RedisCache) Set(ctx context.Context, quote *domain.Quote, ttl time.Duration) {
	raw, err := json.Marshal(quote)
	if err != nil {
		return
	}
	c.client.Set(ctx, c.key(quote.InputMint, quote.OutputMint, quote.InAmount), raw, ttl)
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
