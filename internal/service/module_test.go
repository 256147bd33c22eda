package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"

	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/domain/session"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

// Builds the real dependency graph with a sibling module consuming the
// Deliverer, the way pump and the ws handler do in the application.
func TestSiblingModulesReceiveWrappedDeliverer(t *testing.T) {
	var fromSibling Deliverer
	sibling := fx.Module("sibling",
		fx.Invoke(func(d Deliverer) { fromSibling = d }),
	)

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			func() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) },
			func() registry.Registrar { return newFakeRegistry() },
			func() store.Store { return &fakeStore{} },
			func(reg registry.Registrar, logger *slog.Logger) *session.Manager {
				return session.NewManager(session.Config{Server: "srv-1:9502"}, reg, logger)
			},
		),
		Module,
		sibling,
	)
	require.NoError(t, app.Err())

	mw, ok := fromSibling.(*DeliveryMiddleware)
	require.True(t, ok, "siblings must see the middleware, got %T", fromSibling)
	assert.IsType(t, &DeliveryService{}, mw.Next)
}

func TestMiddlewareRecordsOutcomeTally(t *testing.T) {
	reg := newFakeRegistry()
	local := &fakeLocal{server: "srv-1:9502"}
	tally := NewTally()
	d := &DeliveryMiddleware{
		Next:   newTestDispatcher(reg, local),
		Tally:  tally,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	// Offline user: queued. Empty message: dropped.
	_, err := d.Deliver(context.Background(), "7", "hello", "notification")
	require.NoError(t, err)
	_, err = d.Deliver(context.Background(), "7", "", "notification")
	require.NoError(t, err)

	delivered, queued, dropped := tally.Snapshot()
	assert.Zero(t, delivered)
	assert.EqualValues(t, 1, queued)
	assert.EqualValues(t, 1, dropped)
}
