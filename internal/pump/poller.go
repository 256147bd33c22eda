package pump

import (
	"context"
	"log/slog"
	"time"

	"github.com/notifhub/notify-delivery-service/internal/adapter/outbound"
	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/metrics"
	"github.com/notifhub/notify-delivery-service/internal/service"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

// Poller is Feeder B: it sweeps the persistence layer for rows still in
// state 'pending' and routes each one. A row is marked sent as soon as it
// reached a socket or an offline queue; only invalid rows stay pending.
type Poller struct {
	store     store.Store
	deliverer service.Deliverer
	outbound  outbound.Publisher
	logger    *slog.Logger
	interval  time.Duration
}

func NewPoller(st store.Store, deliverer service.Deliverer, out outbound.Publisher, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Poller{
		store:     st,
		deliverer: deliverer,
		outbound:  out,
		logger:    logger.With(slog.String("component", "sql-poller")),
		interval:  interval,
	}
}

// Run sweeps on a fixed interval until ctx is cancelled. Sweep failures
// are logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.RunOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("pending sweep failed", slog.Any("err", err))
			}
		}
	}
}

// RunOnce processes every pending row exactly once.
func (p *Poller) RunOnce(ctx context.Context) error {
	rows, err := p.store.ListPending(ctx)
	if err != nil {
		return err
	}

	for _, row := range rows {
		if !row.Valid() {
			// Left pending on purpose: an operator has to look at it.
			p.logger.Warn("skipping pending row with missing fields", slog.Int64("id", row.ID))
			metrics.PollerRows.WithLabelValues("skipped").Inc()
			continue
		}

		p.route(ctx, row)

		// Delivered or queued, the row is handled now. A failed state
		// transition leaves it pending for the next sweep, which at
		// worst re-delivers; clients de-duplicate by id.
		if err := p.store.MarkSent(ctx, row.ID); err != nil {
			p.logger.Error("failed to mark row sent", slog.Int64("id", row.ID), slog.Any("err", err))
			continue
		}
		metrics.PollerRows.WithLabelValues("handled").Inc()
	}
	return nil
}

func (p *Poller) route(ctx context.Context, row model.PendingRow) {
	switch row.Transport {
	case "", model.TransportWebsocket:
		if _, err := p.deliverer.Deliver(ctx, row.UserID, row.Message, row.Event); err != nil {
			p.logger.Error("pending row delivery failed",
				slog.Int64("id", row.ID), slog.Any("err", err))
		}
	default:
		n := model.Notification{
			ID:        row.ID,
			UserID:    row.UserID,
			Event:     row.Event,
			Message:   row.Message,
			Timestamp: row.CreatedAt.Unix(),
			Transport: row.Transport,
		}
		if err := p.outbound.Publish(ctx, row.Transport, n); err != nil {
			p.logger.Error("transport queue publish failed",
				slog.Int64("id", row.ID), slog.Any("err", err))
		}
	}
}
