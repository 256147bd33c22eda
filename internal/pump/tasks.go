package pump

import (
	"context"
	"log/slog"
	"runtime"
	"sync"

	"github.com/notifhub/notify-delivery-service/internal/adapter/outbound"
	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/metrics"
	"github.com/notifhub/notify-delivery-service/internal/service"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

// TaskQueue is Feeder C: the in-process queue for jobs issued by request
// handlers. Accepted tasks are not cancellable; a full queue rejects
// instead of blocking the producer.
type TaskQueue struct {
	ch      chan model.Task
	workers int

	deliverer service.Deliverer
	reg       registry.Registrar
	store     store.Store
	counts    service.Counter
	poller    *Poller
	outbound  outbound.Publisher
	logger    *slog.Logger

	wg sync.WaitGroup
}

type TaskQueueConfig struct {
	Workers   int // defaults to 2x CPU in config
	QueueSize int
}

func NewTaskQueue(
	cfg TaskQueueConfig,
	deliverer service.Deliverer,
	reg registry.Registrar,
	st store.Store,
	counts service.Counter,
	poller *Poller,
	out outbound.Publisher,
	logger *slog.Logger,
) *TaskQueue {
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	return &TaskQueue{
		ch:        make(chan model.Task, cfg.QueueSize),
		workers:   cfg.Workers,
		deliverer: deliverer,
		reg:       reg,
		store:     st,
		counts:    counts,
		poller:    poller,
		outbound:  out,
		logger:    logger.With(slog.String("component", "task-queue")),
	}
}

// Enqueue offers a task without blocking. False means the queue is full
// and the task was rejected.
func (q *TaskQueue) Enqueue(t model.Task) bool {
	select {
	case q.ch <- t:
		return true
	default:
		metrics.TasksRejected.Inc()
		q.logger.Warn("task queue full, rejecting",
			slog.String("kind", string(t.Kind)), slog.String("user_id", t.UserID))
		return false
	}
}

// Depth reports the number of queued, not yet accepted tasks.
func (q *TaskQueue) Depth() int { return len(q.ch) }

// Run starts the worker pool and blocks until ctx is cancelled and all
// workers drained out.
func (q *TaskQueue) Run(ctx context.Context) {
	for range q.workers {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t := <-q.ch:
					q.handle(ctx, t)
				}
			}
		}()
	}
	q.wg.Wait()
}

func (q *TaskQueue) handle(ctx context.Context, t model.Task) {
	metrics.TasksProcessed.WithLabelValues(string(t.Kind)).Inc()

	switch t.Kind {
	case model.TaskSendNotification:
		q.sendNotification(ctx, t)

	case model.TaskMarkRead:
		if err := q.store.MarkRead(ctx, t.UserID, t.NotificationID); err != nil {
			q.logger.Error("mark read failed",
				slog.String("user_id", t.UserID),
				slog.Int64("notification_id", t.NotificationID),
				slog.Any("err", err))
			return
		}
		q.counts.Invalidate(t.UserID)

	case model.TaskProcessPending:
		if err := q.poller.RunOnce(ctx); err != nil {
			q.logger.Error("on-demand pending sweep failed", slog.Any("err", err))
		}

	case model.TaskProcessQueued:
		q.replayOffline(ctx, t.UserID)

	default:
		q.logger.Warn("unknown task kind", slog.String("kind", string(t.Kind)))
	}
}

func (q *TaskQueue) sendNotification(ctx context.Context, t model.Task) {
	event := t.Event
	if event == "" {
		event = "notification"
	}

	switch t.Transport {
	case "", model.TransportWebsocket:
		if _, err := q.deliverer.Deliver(ctx, t.UserID, t.Message, event); err != nil {
			q.logger.Error("task delivery failed",
				slog.String("user_id", t.UserID), slog.Any("err", err))
		}
	default:
		n := model.NewNotification(t.UserID, event, t.Message)
		n.Transport = t.Transport
		if err := q.outbound.Publish(ctx, t.Transport, n); err != nil {
			q.logger.Error("task transport publish failed",
				slog.String("user_id", t.UserID), slog.Any("err", err))
		}
	}
}

// replayOffline drains the user's offline queue and re-delivers in FIFO
// order. Sequential delivery preserves ordering; anything that cannot be
// pushed goes straight back to the queue through the dispatcher.
func (q *TaskQueue) replayOffline(ctx context.Context, userID string) {
	items, err := q.reg.DrainOffline(ctx, userID)
	if err != nil {
		q.logger.Error("offline drain failed", slog.String("user_id", userID), slog.Any("err", err))
		return
	}

	for _, n := range items {
		metrics.OfflineDrained.Inc()
		if _, err := q.deliverer.Deliver(ctx, n.UserID, n.Message, n.Event); err != nil {
			q.logger.Error("offline replay delivery failed",
				slog.String("user_id", userID), slog.Any("err", err))
		}
	}
}
