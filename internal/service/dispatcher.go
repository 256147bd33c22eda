package service

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/metrics"
)

// Outcome classifies the result of a deliver call.
type Outcome int8

const (
	// Delivered: the payload reached a live socket, locally or on the
	// instance that owns the user's binding.
	Delivered Outcome = iota + 1
	// Queued: no live binding anywhere; the record went to the offline queue.
	Queued
	// Dropped: empty payload, or both the socket push and the queue write failed.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	}
	return "unknown"
}

// Deliverer is the single entry point for "deliver message M to user U".
// Every pump feeder and every request-path producer goes through it.
type Deliverer interface {
	Deliver(ctx context.Context, userID, message, event string) (Outcome, error)
}

// LocalPusher is what the dispatcher needs from the session manager.
type LocalPusher interface {
	Server() string
	IsEstablished(handle int64) bool
	Push(handle int64, payload []byte) bool
}

type DeliveryService struct {
	reg    registry.Registrar
	local  LocalPusher
	counts Counter
	logger *slog.Logger
}

func NewDeliveryService(reg registry.Registrar, local LocalPusher, counts Counter, logger *slog.Logger) *DeliveryService {
	return &DeliveryService{
		reg:    reg,
		local:  local,
		counts: counts,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// Deliver resolves the user's live binding and routes the payload:
// local socket push when this instance owns the binding, nothing when a
// remote instance owns it (that instance consumes the same broker feed),
// offline queue otherwise. Empty payloads are never enqueued.
func (s *DeliveryService) Deliver(ctx context.Context, userID, message, event string) (Outcome, error) {
	if message == "" {
		return Dropped, nil
	}

	binding, err := s.reg.LookupByUser(ctx, userID)
	switch {
	case err == nil && binding.Server == s.local.Server():
		if s.local.IsEstablished(binding.Handle) && s.pushLocal(ctx, binding.Handle, userID, message, event) {
			return Delivered, nil
		}
		// The registry still carries a handle this process no longer
		// owns: a ghost. Reap our own entry and fall through to the
		// offline queue. Remote ghosts are the other server's business.
		if uerr := s.reg.UnbindByHandle(ctx, binding); uerr != nil {
			s.logger.Warn("ghost cleanup failed",
				slog.String("user_id", userID), slog.Any("err", uerr))
		}

	case err == nil:
		// Live on another instance; it sees the same feeders and pushes
		// there. Enqueueing here would double-deliver on reconnect.
		s.logger.Debug("binding owned elsewhere",
			slog.String("user_id", userID), slog.String("server", binding.Server))
		return Delivered, nil

	case !errors.Is(err, registry.ErrNotFound):
		// Lookup failed even after retries. Still try the queue write:
		// only when that fails too is the notification lost.
		s.logger.Error("registry lookup failed", slog.String("user_id", userID), slog.Any("err", err))
	}

	n := model.Notification{
		UserID:    userID,
		Event:     event,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
	if err := s.reg.EnqueueOffline(ctx, userID, n); err != nil {
		s.logger.Error("offline enqueue failed", slog.String("user_id", userID), slog.Any("err", err))
		return Dropped, err
	}
	metrics.OfflineEnqueued.Inc()
	return Queued, nil
}

// pushLocal serializes the wire frame and hands it to the session writer.
func (s *DeliveryService) pushLocal(ctx context.Context, handle int64, userID, message, event string) bool {
	frame := model.NotificationFrame{
		Type:      model.FrameNotification,
		Event:     event,
		Message:   message,
		Count:     s.counts.Total(ctx, userID),
		Timestamp: time.Now().Unix(),
	}
	payload, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("frame marshal failed", slog.Any("err", err))
		return false
	}
	return s.local.Push(handle, payload)
}
