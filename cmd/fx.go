package cmd

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/notifhub/notify-delivery-service/config"
	"github.com/notifhub/notify-delivery-service/infra/redis"
	httpsrv "github.com/notifhub/notify-delivery-service/infra/server/http"
	"github.com/notifhub/notify-delivery-service/internal/adapter/outbound"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/domain/session"
	wshandler "github.com/notifhub/notify-delivery-service/internal/handler/ws"
	"github.com/notifhub/notify-delivery-service/internal/pump"
	"github.com/notifhub/notify-delivery-service/internal/service"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

func NewApp(cfg *config.Config) *fx.App {
	return fx.New(
		fx.Provide(
			func() *config.Config { return cfg },
			ProvideLogger,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger}
		}),
		redis.Module,
		registry.Module,
		store.Module,
		session.Module,
		service.Module,
		outbound.Module,
		pump.Module,
		wshandler.Module,
		httpsrv.Module,
	)
}

// ProvideLogger builds the process logger: colored console output for
// interactive runs, JSON for aggregation.
func ProvideLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Log.Level))); err != nil {
		level = slog.LevelInfo
	}

	var handler slog.Handler
	if cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		})
	}

	logger := slog.New(handler).With(slog.String("service", cfg.Service.Name))
	slog.SetDefault(logger)
	return logger
}
