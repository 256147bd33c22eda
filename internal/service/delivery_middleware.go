package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/notifhub/notify-delivery-service/internal/metrics"
)

// DeliveryMiddleware implements [DECORATOR_PATTERN] to add observability
// around the dispatcher without touching the routing logic.
type DeliveryMiddleware struct {
	Next   Deliverer
	Tally  *Tally
	Logger *slog.Logger
}

func (m *DeliveryMiddleware) Deliver(ctx context.Context, userID, message, event string) (Outcome, error) {
	start := time.Now()

	outcome, err := m.Next.Deliver(ctx, userID, message, event)

	metrics.DeliveriesTotal.WithLabelValues(outcome.String()).Inc()
	m.Tally.Record(outcome)

	if err != nil {
		m.Logger.Error("deliver failed",
			"user_id", userID,
			"event", event,
			"outcome", outcome.String(),
			"duration_ms", time.Since(start).Milliseconds(),
			"err", err,
		)
	} else {
		m.Logger.Debug("deliver completed",
			"user_id", userID,
			"event", event,
			"outcome", outcome.String(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}

	return outcome, err
}
