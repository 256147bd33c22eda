package service

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

type fakeStore struct {
	system, personal, notices, announcements int64
	queries                                  atomic.Int64
	err                                      error
}

func (f *fakeStore) ListPending(context.Context) ([]model.PendingRow, error) { return nil, nil }
func (f *fakeStore) MarkSent(context.Context, int64) error                   { return nil }
func (f *fakeStore) MarkRead(context.Context, string, int64) error           { return nil }

func (f *fakeStore) UnreadNotificationCounts(context.Context, string) (int64, int64, error) {
	f.queries.Add(1)
	return f.system, f.personal, f.err
}

func (f *fakeStore) CountUnreadNotices(context.Context, string) (int64, error) {
	f.queries.Add(1)
	return f.notices, f.err
}

func (f *fakeStore) CountAnnouncements(context.Context) (int64, error) {
	f.queries.Add(1)
	return f.announcements, f.err
}

func TestSnapshotAggregatesCounts(t *testing.T) {
	st := &fakeStore{system: 2, personal: 5, notices: 1, announcements: 3}
	c := NewCountService(st, slog.Default())

	snap, err := c.Snapshot(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, model.NotificationCount{
		SystemNotifications:   2,
		GeneralNotices:        1,
		PersonalNotifications: 5,
		Announcements:         3,
	}, snap)
	assert.EqualValues(t, 11, c.Total(context.Background(), "42"))
}

func TestSnapshotIsCached(t *testing.T) {
	st := &fakeStore{personal: 1}
	c := NewCountService(st, slog.Default())

	_, err := c.Snapshot(context.Background(), "42")
	require.NoError(t, err)
	after := st.queries.Load()

	_, err = c.Snapshot(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, after, st.queries.Load())

	c.Invalidate("42")
	_, err = c.Snapshot(context.Background(), "42")
	require.NoError(t, err)
	assert.Greater(t, st.queries.Load(), after)
}

func TestTotalSurvivesStoreFailure(t *testing.T) {
	st := &fakeStore{err: errors.New("db down")}
	c := NewCountService(st, slog.Default())

	assert.EqualValues(t, 0, c.Total(context.Background(), "42"))
}
