// Package metrics provides Prometheus instrumentation for the delivery core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session metrics.
var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "notify_sessions_active",
		Help: "Number of live WebSocket sessions on this instance.",
	})

	SessionsSuperseded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_sessions_superseded_total",
		Help: "Total sessions evicted by a newer connection of the same user.",
	})
)

// Delivery metrics.
var (
	DeliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_deliveries_total",
		Help: "Total deliver calls by outcome.",
	}, []string{"outcome"})

	OfflineEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_offline_enqueued_total",
		Help: "Total notifications appended to offline queues.",
	})

	OfflineDrained = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_offline_drained_total",
		Help: "Total notifications replayed from offline queues.",
	})
)

// Pump metrics.
var (
	BrokerMessages = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_broker_messages_total",
		Help: "Total messages consumed from the broker channel.",
	})

	PollerRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_poller_rows_total",
		Help: "Total pending rows processed by the SQL poller.",
	}, []string{"result"})

	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notify_tasks_processed_total",
		Help: "Total background tasks processed by kind.",
	}, []string{"kind"})

	TasksRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "notify_tasks_rejected_total",
		Help: "Total tasks rejected because the queue was full.",
	})
)
