package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/errgroup"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
	"github.com/notifhub/notify-delivery-service/internal/store"
)

const (
	countCacheSize = 8192
	countCacheTTL  = 30 * time.Second
)

// Counter produces the per-user unread snapshot pushed on open and on
// get_notifications requests.
type Counter interface {
	Snapshot(ctx context.Context, userID string) (model.NotificationCount, error)
	// Total is the cached sum used as the 'count' field of notification
	// frames. Best effort: 0 when nothing is cached and SQL is down.
	Total(ctx context.Context, userID string) int64
	// Invalidate drops the cached snapshot, e.g. after mark_read.
	Invalidate(userID string)
}

type CountService struct {
	store  store.Store
	logger *slog.Logger

	// [HOT_PATH] A reconnect storm or a chatty client polling
	// get_notifications must not translate into an SQL storm.
	cache *expirable.LRU[string, model.NotificationCount]
}

func NewCountService(st store.Store, logger *slog.Logger) *CountService {
	return &CountService{
		store:  st,
		logger: logger.With(slog.String("component", "counts")),
		cache:  expirable.NewLRU[string, model.NotificationCount](countCacheSize, nil, countCacheTTL),
	}
}

// Snapshot runs the three count queries concurrently and caches the result.
func (c *CountService) Snapshot(ctx context.Context, userID string) (model.NotificationCount, error) {
	if cached, ok := c.cache.Get(userID); ok {
		return cached, nil
	}

	var snap model.NotificationCount
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		system, personal, err := c.store.UnreadNotificationCounts(gCtx, userID)
		if err != nil {
			return err
		}
		snap.SystemNotifications = system
		snap.PersonalNotifications = personal
		return nil
	})
	g.Go(func() error {
		n, err := c.store.CountUnreadNotices(gCtx, userID)
		if err != nil {
			return err
		}
		snap.GeneralNotices = n
		return nil
	})
	g.Go(func() error {
		n, err := c.store.CountAnnouncements(gCtx)
		if err != nil {
			return err
		}
		snap.Announcements = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.NotificationCount{}, err
	}

	c.cache.Add(userID, snap)
	return snap, nil
}

func (c *CountService) Total(ctx context.Context, userID string) int64 {
	snap, err := c.Snapshot(ctx, userID)
	if err != nil {
		c.logger.Debug("count snapshot unavailable",
			slog.String("user_id", userID), slog.Any("err", err))
		return 0
	}
	return snap.SystemNotifications + snap.GeneralNotices +
		snap.PersonalNotifications + snap.Announcements
}

func (c *CountService) Invalidate(userID string) {
	c.cache.Remove(userID)
}
