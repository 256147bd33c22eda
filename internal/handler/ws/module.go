package ws

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/internal/domain/session"
	"github.com/notifhub/notify-delivery-service/internal/pump"
	"github.com/notifhub/notify-delivery-service/internal/service"
)

var Module = fx.Module("ws-handler",
	fx.Provide(
		func(logger *slog.Logger, manager *session.Manager, counts service.Counter, tasks *pump.TaskQueue) *WSHandler {
			return NewWSHandler(logger, manager, counts, tasks)
		},
	),
)
