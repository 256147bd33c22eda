package model

// Server-to-client frame envelopes. The wire format is JSON text frames only.
const (
	FrameConnection        = "connection"
	FramePong              = "pong"
	FrameNotification      = "notification"
	FrameNotificationCount = "notification_count"
)

// Client-to-server actions.
const (
	ActionPing             = "ping"
	ActionPong             = "pong"
	ActionGetNotifications = "get_notifications"
	ActionSendNotification = "send_notification"
	ActionMarkRead         = "mark_read"
)

// Application close codes (4xxx range is reserved for private use by RFC 6455).
const (
	CloseMissingUser = 4000 // userId query parameter absent or non-numeric
	CloseIdleTimeout = 4001 // no inbound frame within the heartbeat window
	CloseInvalidUser = 4002 // user vanished under an active socket
	CloseSuperseded  = 4003 // evicted by a newer connection of the same user
)

// ConnectionFrame acknowledges a successful open.
type ConnectionFrame struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	Message      string `json:"message"`
	ConnectionID int64  `json:"connection_id"`
}

// PongFrame answers a client ping with the server timestamp.
type PongFrame struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NotificationCount is the per-user unread snapshot pushed on open and
// on explicit get_notifications requests.
type NotificationCount struct {
	SystemNotifications   int64 `json:"system_notifications"`
	GeneralNotices        int64 `json:"general_notices"`
	PersonalNotifications int64 `json:"personal_notifications"`
	Announcements         int64 `json:"announcements,omitempty"`
}

// NotificationCountFrame wraps the snapshot for the wire.
type NotificationCountFrame struct {
	Type string            `json:"type"`
	Data NotificationCount `json:"data"`
}

// NotificationFrame carries a delivered notification.
type NotificationFrame struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	Message   string `json:"message"`
	Count     int64  `json:"count"`
	Timestamp int64  `json:"timestamp"`
}

// InboundFrame is the single decoded shape of every client frame.
// Fields beyond Action are populated per action kind.
type InboundFrame struct {
	Action         string `json:"action"`
	UserID         string `json:"user_id,omitempty"`
	Event          string `json:"event,omitempty"`
	Message        string `json:"message,omitempty"`
	NotificationID int64  `json:"notification_id,omitempty"`
}

// BrokerEnvelope is the payload published on the shared broker channel.
type BrokerEnvelope struct {
	UserID  string `json:"userId"`
	Message string `json:"message"`
}
