package store

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/config"
)

var Module = fx.Module("store",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (*Postgres, error) {
			pg, err := NewPostgres(context.Background(), PoolConfig{
				DSN:           cfg.DB.DSN,
				ReadPoolSize:  int32(cfg.DB.ReadPoolSize),
				WritePoolSize: int32(cfg.DB.WritePoolSize),
			}, logger)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					pg.Close()
					return nil
				},
			})
			return pg, nil
		},
		func(p *Postgres) Store { return p },
	),
)
