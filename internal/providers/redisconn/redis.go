// Package redisconn provides the shared Redis client used for read caches
// and rate limiting. Connections are lazy; an unreachable Redis degrades
// those features instead of failing startup.
package redisconn

import (
	"context"

	"github.com/fabworks/cbbstore/internal/config"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

func New(cfg config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func registerHooks(lc fx.Lifecycle, client *redis.Client) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			_ = ctx
			return client.Close()
		},
	})
}

// Module wires the Redis client.
var Module = fx.Module("providers.redis",
	fx.Provide(New),
	fx.Invoke(registerHooks),
)
