package model

import "time"

type Transport string

const (
	// [ZERO_VALUE_GUARD] An empty transport is normalized to websocket by the pump.
	TransportWebsocket Transport = "websocket"
	TransportEmail     Transport = "email"
	TransportSMS       Transport = "sms"
	TransportPush      Transport = "push"
)

// Notification is the core record flowing through the delivery pipeline.
// All values are opaque to the core; only routing fields are inspected.
type Notification struct {
	ID        int64     `json:"id,omitempty"`
	UserID    string    `json:"user_id"`
	Event     string    `json:"event"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
	Transport Transport `json:"transport,omitempty"`
}

// NewNotification stamps a fresh record with the current time.
func NewNotification(userID, event, message string) Notification {
	return Notification{
		UserID:    userID,
		Event:     event,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}

// PendingRow is a notification read back from the persistence layer
// while still in state 'pending'.
type PendingRow struct {
	ID        int64
	UserID    string
	Event     string
	Message   string
	Transport Transport
	CreatedAt time.Time
}

// Valid reports whether the row carries enough data to be routed.
// Invalid rows are skipped with a warning and left pending.
func (r PendingRow) Valid() bool {
	return r.UserID != "" && r.Message != ""
}
