package model

import "github.com/google/uuid"

type TaskKind string

const (
	TaskSendNotification TaskKind = "send_notification"
	TaskMarkRead         TaskKind = "mark_notification_read"
	TaskProcessPending   TaskKind = "process_pending_db_notifications"
	TaskProcessQueued    TaskKind = "process_queued_notifications"
)

// Task is an in-process background job accepted by the task workers.
// Tasks are not cancellable once accepted.
type Task struct {
	ID             string
	Kind           TaskKind
	UserID         string
	Event          string
	Message        string
	NotificationID int64
	Transport      Transport
}

func NewTask(kind TaskKind, userID string) Task {
	return Task{
		ID:     uuid.NewString(),
		Kind:   kind,
		UserID: userID,
	}
}
