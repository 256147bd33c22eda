package pump

import (
	"context"
	"log/slog"

	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/config"
	"github.com/notifhub/notify-delivery-service/internal/adapter/outbound"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/service"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

var Module = fx.Module("pump",
	fx.Provide(
		NewSubscriber,
		func(cfg *config.Config, st store.Store, deliverer service.Deliverer, out outbound.Publisher, logger *slog.Logger) *Poller {
			return NewPoller(st, deliverer, out, cfg.Pump.PollInterval, logger)
		},
		func(cfg *config.Config, deliverer service.Deliverer, reg registry.Registrar, st store.Store,
			counts service.Counter, poller *Poller, out outbound.Publisher, logger *slog.Logger) *TaskQueue {
			return NewTaskQueue(TaskQueueConfig{
				Workers:   cfg.Pump.TaskWorkers,
				QueueSize: cfg.Pump.TaskQueueSize,
			}, deliverer, reg, st, counts, poller, out, logger)
		},
	),

	// All three feeders share the server's lifetime: started together,
	// cancelled together, no caller-driven cancellation in between.
	fx.Invoke(func(lc fx.Lifecycle, sub *Subscriber, poller *Poller, tasks *TaskQueue) {
		runCtx, cancel := context.WithCancel(context.Background())
		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go sub.Run(runCtx)
				go poller.Run(runCtx)
				go tasks.Run(runCtx)
				return nil
			},
			OnStop: func(context.Context) error {
				cancel()
				return nil
			},
		})
	}),
)
