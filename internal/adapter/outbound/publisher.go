// Package outbound bridges non-websocket notification transports to their
// broker queues. Email, SMS and push senders are external collaborators:
// they consume email_queue, sms_queue and push_queue on the message broker,
// and this adapter is the only producer side the delivery core carries.
package outbound

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

// Queue names consumed by the transport back-ends.
const (
	EmailQueue = "email_queue"
	SMSQueue   = "sms_queue"
	PushQueue  = "push_queue"
)

// Publisher routes a notification to the queue of its transport.
type Publisher interface {
	Publish(ctx context.Context, transport model.Transport, n model.Notification) error
}

type queuePublisher struct {
	publisher message.Publisher
	logger    *slog.Logger
}

// NewQueuePublisher wraps a watermill publisher with transport routing.
func NewQueuePublisher(pub message.Publisher, logger *slog.Logger) Publisher {
	return &queuePublisher{
		publisher: pub,
		logger:    logger.With(slog.String("component", "outbound")),
	}
}

func queueFor(transport model.Transport) (string, bool) {
	switch transport {
	case model.TransportEmail:
		return EmailQueue, true
	case model.TransportSMS:
		return SMSQueue, true
	case model.TransportPush:
		return PushQueue, true
	}
	return "", false
}

func (p *queuePublisher) Publish(ctx context.Context, transport model.Transport, n model.Notification) error {
	queue, ok := queueFor(transport)
	if !ok {
		return fmt.Errorf("outbound: no queue for transport %q", transport)
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("outbound: marshal failure: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(queue, msg); err != nil {
		return fmt.Errorf("outbound: publish to %s: %w", queue, err)
	}

	p.logger.Debug("notification handed to transport queue",
		slog.String("queue", queue), slog.String("user_id", n.UserID))
	return nil
}

// noopPublisher is installed when no broker is configured; non-websocket
// notifications are then logged and dropped rather than failing the pump.
type noopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) Publisher {
	return &noopPublisher{logger: logger}
}

func (p *noopPublisher) Publish(_ context.Context, transport model.Transport, n model.Notification) error {
	p.logger.Warn("no outbound broker configured, dropping notification",
		slog.String("transport", string(transport)), slog.String("user_id", n.UserID))
	return nil
}
