package model

// HubStats is the live snapshot exposed on /stats.
type HubStats struct {
	Server         string `json:"server"`
	ActiveSessions int    `json:"active_sessions"`
	Delivered      uint64 `json:"delivered"`
	Queued         uint64 `json:"queued"`
	Dropped        uint64 `json:"dropped"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	TaskQueueDepth int    `json:"task_queue_depth"`
}
