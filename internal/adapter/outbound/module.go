package outbound

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	amqp "github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/config"
)

var Module = fx.Module("outbound",
	fx.Provide(
		func(lc fx.Lifecycle, cfg *config.Config, logger *slog.Logger) (Publisher, error) {
			if cfg.AMQP.URI == "" {
				return NewNoopPublisher(logger), nil
			}

			pub, err := amqp.NewPublisher(
				amqp.NewDurableQueueConfig(cfg.AMQP.URI),
				watermill.NewSlogLogger(logger),
			)
			if err != nil {
				return nil, err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return pub.Close()
				},
			})
			return NewQueuePublisher(pub, logger), nil
		},
	),
)
