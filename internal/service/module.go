package service

import (
	"log/slog"

	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/internal/domain/session"
)

var Module = fx.Module(
	"service",

	fx.Provide(
		func(m *session.Manager) LocalPusher { return m },
		fx.Annotate(
			NewCountService,
			fx.As(new(Counter)),
		),
		NewDeliveryService,
		NewTally,

		// [DECORATION_LAYER] The dispatcher every consumer sees is the
		// middleware-wrapped one. Provided directly rather than via
		// fx.Decorate: module-scoped decorations never reach siblings.
		func(svc *DeliveryService, tally *Tally, logger *slog.Logger) Deliverer {
			return &DeliveryMiddleware{
				Next:   svc,
				Tally:  tally,
				Logger: logger,
			}
		},
	),
)
