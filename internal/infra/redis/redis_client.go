package redis

import (
	"context"

	"agenthub/internal/config"

	"github.com/go-redis/redis/v8"
)

// NewClient connects and pings, failing fast on a bad address.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.URL,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	c := redis.NewClient(opts)
	if err := c.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return c, nil
}
