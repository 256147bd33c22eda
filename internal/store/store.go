// Package store is the SQL persistence collaborator of the delivery core.
// The core depends only on the narrow interface below; everything about
// tables and pools stays behind it.
package store

import (
	"context"

	"github.com/notifhub/notify-delivery-service/internal/domain/model"
)

type Store interface {
	// ListPending returns every notification row still in state 'pending'.
	ListPending(ctx context.Context) ([]model.PendingRow, error)

	// MarkSent transitions one row pending→sent. Once a record reached a
	// socket or an offline queue it is handled, delivered or not.
	MarkSent(ctx context.Context, id int64) error

	// MarkRead transitions read_status unread→read and stamps read_at.
	MarkRead(ctx context.Context, userID string, notificationID int64) error

	// UnreadNotificationCounts returns per-category unread totals for the
	// user (system and personal notifications).
	UnreadNotificationCounts(ctx context.Context, userID string) (system, personal int64, err error)

	// CountUnreadNotices returns the number of published general notices.
	CountUnreadNotices(ctx context.Context, userID string) (int64, error)

	// CountAnnouncements returns the number of active announcements.
	CountAnnouncements(ctx context.Context) (int64, error)
}
