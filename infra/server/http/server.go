// Package http hosts the single listener of the delivery service: the
// websocket endpoint at the root plus the operational surface (health,
// stats, metrics). TLS is used when the configured certificate pair is
// readable, plain TCP otherwise.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/notifhub/notify-delivery-service/config"
	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/session"
	"github.com/notifhub/notify-delivery-service/internal/handler/ws"
	"github.com/notifhub/notify-delivery-service/internal/pump"
	"github.com/notifhub/notify-delivery-service/internal/service"
)

const shutdownTimeout = 10 * time.Second

type Server struct {
	cfg    *config.Config
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(
	cfg *config.Config,
	wsHandler *ws.WSHandler,
	manager *session.Manager,
	tally *service.Tally,
	tasks *pump.TaskQueue,
	logger *slog.Logger,
) *Server {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/", wsHandler.ServeHTTP)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/stats", statsHandler(cfg, manager, tally, tasks))
	r.Handle("/metrics", promhttp.Handler())

	return &Server{
		cfg: cfg,
		srv: &http.Server{
			Addr:              cfg.Service.Listen,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With(slog.String("component", "http")),
	}
}

func statsHandler(cfg *config.Config, manager *session.Manager, tally *service.Tally, tasks *pump.TaskQueue) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		delivered, queued, dropped := tally.Snapshot()
		stats := model.HubStats{
			Server:         cfg.ServerIdentity(),
			ActiveSessions: manager.Active(),
			Delivered:      delivered,
			Queued:         queued,
			Dropped:        dropped,
			UptimeSeconds:  int64(manager.Uptime().Seconds()),
			TaskQueueDepth: tasks.Depth(),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(stats)
	}
}

// Start begins serving in the background and returns once the listener is
// handed to the runtime. Fatal serve errors end the process: a delivery
// node without its listener is useless.
func (s *Server) Start() {
	tls := s.cfg.TLSEnabled()
	s.logger.Info("listening",
		slog.String("addr", s.srv.Addr), slog.Bool("tls", tls))

	go func() {
		var err error
		if tls {
			err = s.srv.ListenAndServeTLS(s.cfg.Service.CertFile, s.cfg.Service.KeyFile)
		} else {
			err = s.srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("listener failed", slog.Any("err", err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
