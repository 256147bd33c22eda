/*
Package pump feeds the dispatcher from three independent sources: the
shared broker channel, the SQL store's pending rows, and the in-process
task queue. Each feeder may fail and restart without affecting the
others; none of them terminates before the server does.
*/
package pump

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/metrics"
	"github.com/notifhub/notify-delivery-service/internal/service"
)

const resubscribeDelay = 5 * time.Second

// Subscriber is Feeder A: a long-lived subscription on the shared broker
// channel, bridging externally published notifications into local delivery.
type Subscriber struct {
	rdb       redis.UniversalClient
	deliverer service.Deliverer
	logger    *slog.Logger
}

func NewSubscriber(rdb redis.UniversalClient, deliverer service.Deliverer, logger *slog.Logger) *Subscriber {
	return &Subscriber{
		rdb:       rdb,
		deliverer: deliverer,
		logger:    logger.With(slog.String("component", "broker-subscriber")),
	}
}

// Run consumes the channel until ctx is cancelled. Subscription loss is
// never fatal: wait, resubscribe, keep going.
func (s *Subscriber) Run(ctx context.Context) {
	for ctx.Err() == nil {
		if err := s.consume(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("broker subscription lost", slog.Any("err", err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (s *Subscriber) consume(ctx context.Context) error {
	sub := s.rdb.Subscribe(ctx, registry.BrokerChannel)
	defer sub.Close()

	// Force the SUBSCRIBE round-trip so connection failures surface here
	// instead of silently draining an empty channel.
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	s.logger.Info("broker subscription established", slog.String("channel", registry.BrokerChannel))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-sub.Channel():
			if !ok {
				return nil
			}
			s.handle(ctx, msg.Payload)
		}
	}
}

func (s *Subscriber) handle(ctx context.Context, payload string) {
	metrics.BrokerMessages.Inc()

	var env model.BrokerEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		s.logger.Warn("undecodable broker message", slog.Any("err", err))
		return
	}
	if env.UserID == "" {
		s.logger.Warn("broker message without userId")
		return
	}

	if _, err := s.deliverer.Deliver(ctx, env.UserID, env.Message, "notification"); err != nil {
		s.logger.Error("broker-fed delivery failed",
			slog.String("user_id", env.UserID), slog.Any("err", err))
	}
}
