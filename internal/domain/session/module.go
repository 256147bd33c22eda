package session

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/config"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
)

var Module = fx.Module("session",
	fx.Provide(
		func(cfg *config.Config, reg registry.Registrar, logger *slog.Logger) *Manager {
			return NewManager(Config{
				Server:      cfg.ServerIdentity(),
				IdleTimeout: cfg.WS.IdleTimeout,
				SendTimeout: cfg.WS.SendTimeout,
				BufferSize:  cfg.WS.SendBuffer,
			}, reg, logger)
		},
	),
	fx.Invoke(func(lc fx.Lifecycle, m *Manager) {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				m.Shutdown()
				return nil
			},
		})
	}),
)
