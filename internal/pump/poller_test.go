package pump

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/domain/registry"
	"github.com/notifhub/notify-delivery-service/internal/service"
)

type delivery struct {
	userID  string
	message string
	event   string
}

type fakeDeliverer struct {
	mu      sync.Mutex
	calls   []delivery
	outcome service.Outcome
	err     error
}

func (d *fakeDeliverer) Deliver(_ context.Context, userID, message, event string) (service.Outcome, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, delivery{userID: userID, message: message, event: event})
	if d.err != nil {
		return service.Dropped, d.err
	}
	if d.outcome == 0 {
		return service.Delivered, nil
	}
	return d.outcome, nil
}

func (d *fakeDeliverer) deliveries() []delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]delivery(nil), d.calls...)
}

type published struct {
	transport model.Transport
	n         model.Notification
}

type fakePublisher struct {
	mu    sync.Mutex
	calls []published
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, transport model.Transport, n model.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, published{transport: transport, n: n})
	return p.err
}

type fakeStore struct {
	mu       sync.Mutex
	pending  []model.PendingRow
	sentIDs  []int64
	readIDs  []int64
	listErr  error
	sentErr  error
	readErr  error
}

func (s *fakeStore) ListPending(context.Context) ([]model.PendingRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]model.PendingRow(nil), s.pending...), nil
}

func (s *fakeStore) MarkSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentErr != nil {
		return s.sentErr
	}
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *fakeStore) MarkRead(_ context.Context, _ string, notificationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return s.readErr
	}
	s.readIDs = append(s.readIDs, notificationID)
	return nil
}

func (s *fakeStore) UnreadNotificationCounts(context.Context, string) (int64, int64, error) {
	return 0, 0, nil
}

func (s *fakeStore) CountUnreadNotices(context.Context, string) (int64, error) { return 0, nil }

func (s *fakeStore) CountAnnouncements(context.Context) (int64, error) { return 0, nil }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollerRoutesWebsocketRowsThroughDispatcher(t *testing.T) {
	st := &fakeStore{pending: []model.PendingRow{
		{ID: 1, UserID: "7", Event: "notification", Message: "hello", Transport: model.TransportWebsocket, CreatedAt: time.Now()},
		{ID: 2, UserID: "8", Event: "alert", Message: "fire", CreatedAt: time.Now()},
	}}
	deliverer := &fakeDeliverer{}
	out := &fakePublisher{}
	p := NewPoller(st, deliverer, out, time.Second, discardLogger())

	require.NoError(t, p.RunOnce(context.Background()))

	calls := deliverer.deliveries()
	require.Len(t, calls, 2)
	assert.Equal(t, delivery{userID: "7", message: "hello", event: "notification"}, calls[0])
	assert.Equal(t, delivery{userID: "8", message: "fire", event: "alert"}, calls[1])
	assert.Empty(t, out.calls)
	assert.Equal(t, []int64{1, 2}, st.sentIDs)
}

func TestPollerRoutesOtherTransportsToOutbound(t *testing.T) {
	created := time.Now()
	st := &fakeStore{pending: []model.PendingRow{
		{ID: 3, UserID: "9", Event: "digest", Message: "weekly", Transport: model.TransportEmail, CreatedAt: created},
	}}
	deliverer := &fakeDeliverer{}
	out := &fakePublisher{}
	p := NewPoller(st, deliverer, out, time.Second, discardLogger())

	require.NoError(t, p.RunOnce(context.Background()))

	assert.Empty(t, deliverer.deliveries())
	require.Len(t, out.calls, 1)
	assert.Equal(t, model.TransportEmail, out.calls[0].transport)
	assert.Equal(t, "9", out.calls[0].n.UserID)
	assert.Equal(t, "weekly", out.calls[0].n.Message)
	assert.Equal(t, created.Unix(), out.calls[0].n.Timestamp)
	assert.Equal(t, []int64{3}, st.sentIDs)
}

func TestPollerSkipsInvalidRowsAndLeavesThemPending(t *testing.T) {
	st := &fakeStore{pending: []model.PendingRow{
		{ID: 4, UserID: "", Message: "orphan"},
		{ID: 5, UserID: "10", Message: ""},
		{ID: 6, UserID: "10", Message: "ok"},
	}}
	deliverer := &fakeDeliverer{}
	p := NewPoller(st, deliverer, &fakePublisher{}, time.Second, discardLogger())

	require.NoError(t, p.RunOnce(context.Background()))

	// Only the valid row is routed and marked; the broken ones stay pending.
	require.Len(t, deliverer.deliveries(), 1)
	assert.Equal(t, "10", deliverer.deliveries()[0].userID)
	assert.Equal(t, []int64{6}, st.sentIDs)
}

func TestPollerMarksSentEvenWhenDeliveryErrors(t *testing.T) {
	st := &fakeStore{pending: []model.PendingRow{
		{ID: 7, UserID: "11", Message: "hi"},
	}}
	deliverer := &fakeDeliverer{err: errors.New("queue write failed")}
	p := NewPoller(st, deliverer, &fakePublisher{}, time.Second, discardLogger())

	require.NoError(t, p.RunOnce(context.Background()))
	assert.Equal(t, []int64{7}, st.sentIDs)
}

func TestPollerPropagatesListFailure(t *testing.T) {
	st := &fakeStore{listErr: errors.New("connection refused")}
	p := NewPoller(st, &fakeDeliverer{}, &fakePublisher{}, time.Second, discardLogger())

	err := p.RunOnce(context.Background())
	require.Error(t, err)
}

// fakeTaskRegistry covers only what the task queue touches.
type fakeTaskRegistry struct {
	mu       sync.Mutex
	offline  map[string][]model.Notification
	drainErr error
}

func newFakeTaskRegistry() *fakeTaskRegistry {
	return &fakeTaskRegistry{offline: make(map[string][]model.Notification)}
}

func (r *fakeTaskRegistry) Bind(context.Context, string, registry.Binding) (*registry.Binding, error) {
	return nil, nil
}

func (r *fakeTaskRegistry) LookupByUser(context.Context, string) (registry.Binding, error) {
	return registry.Binding{}, registry.ErrNotFound
}

func (r *fakeTaskRegistry) LookupByHandle(context.Context, registry.Binding) (string, error) {
	return "", registry.ErrNotFound
}

func (r *fakeTaskRegistry) Unbind(context.Context, string, registry.Binding) error { return nil }

func (r *fakeTaskRegistry) UnbindByHandle(context.Context, registry.Binding) error { return nil }

func (r *fakeTaskRegistry) EnqueueOffline(_ context.Context, userID string, n model.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.offline[userID] = append(r.offline[userID], n)
	return nil
}

func (r *fakeTaskRegistry) DrainOffline(_ context.Context, userID string) ([]model.Notification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drainErr != nil {
		return nil, r.drainErr
	}
	items := r.offline[userID]
	delete(r.offline, userID)
	return items, nil
}

func (r *fakeTaskRegistry) OfflineLen(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.offline[userID])), nil
}

type fakeCounter struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCounter) Snapshot(context.Context, string) (model.NotificationCount, error) {
	return model.NotificationCount{}, nil
}

func (c *fakeCounter) Total(context.Context, string) int64 { return 0 }

func (c *fakeCounter) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, userID)
}
