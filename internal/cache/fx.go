package cache

import (
	"context"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/sygmef/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const redisKeyPrefix = "sygmef:"

var Module = fx.Module("cache",
	fx.Provide(NewStore),
)

// NewStore picks redis when REDIS_ADDR is set and reachable, the in-memory
// store otherwise.
func NewStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Store {
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return NewMemoryStore()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(cfg.RedisPassword),
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warn("redis unreachable, using in-memory cache", zap.String("addr", addr), zap.Error(err))
		_ = client.Close()
		return NewMemoryStore()
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}
	log.Info("redis cache connected", zap.String("addr", addr))
	return NewRedisStore(client, redisKeyPrefix)
}
