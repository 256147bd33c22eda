// Package redis provides the shared client for the distributed registry and
// the broker channel. A single universal client serves standalone and
// cluster deployments alike.
package redis

import (
	"context"
	"crypto/tls"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/config"
)

func NewClient(cfg *config.Config) redis.UniversalClient {
	opts := &redis.UniversalOptions{
		Addrs:         []string{cfg.RedisAddr()},
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		IsClusterMode: cfg.Redis.Cluster,
	}
	if cfg.Redis.Scheme == "tls" {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewUniversalClient(opts)
}

var Module = fx.Module("redis",
	fx.Provide(NewClient),
	fx.Invoke(func(lc fx.Lifecycle, rdb redis.UniversalClient, logger *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := rdb.Ping(ctx).Err(); err != nil {
					return err
				}
				logger.Info("redis connection established")
				return nil
			},
			OnStop: func(context.Context) error {
				return rdb.Close()
			},
		})
	}),
)
