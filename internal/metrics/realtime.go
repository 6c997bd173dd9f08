package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime change feed and notification metrics
var (
	// RealtimeSubscriptions tracks live hub subscriptions
	RealtimeSubscriptions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_subscriptions",
			Help:      "Current number of realtime hub subscriptions",
		},
	)

	// RealtimeChangesReceived counts row changes decoded from the database channel
	RealtimeChangesReceived = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_changes_received_total",
			Help:      "Total number of row change notifications received",
		},
		[]string{"table", "type"},
	)

	// RealtimeDeliveries counts changes handed to subscriptions
	RealtimeDeliveries = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_deliveries_total",
			Help:      "Total number of changes delivered to subscriptions",
		},
	)

	// RealtimeDropped counts changes dropped because a subscriber buffer was full
	RealtimeDropped = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_dropped_total",
			Help:      "Total number of changes dropped for slow subscribers",
		},
	)

	// RealtimeListenerReconnects counts LISTEN connection re-establishments
	RealtimeListenerReconnects = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_listener_reconnects_total",
			Help:      "Total number of change listener reconnect attempts",
		},
	)

	// RealtimeDecodeErrors counts payloads that could not be decoded
	RealtimeDecodeErrors = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_decode_errors_total",
			Help:      "Total number of undecodable change payloads",
		},
	)

	// NotificationSessions tracks live per-user notification sessions
	NotificationSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "notification_sessions",
			Help:      "Current number of notification sessions",
		},
	)

	// NotificationsEmitted counts notifications appended to inboxes
	NotificationsEmitted = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_emitted_total",
			Help:      "Total number of notifications emitted",
		},
		[]string{"kind"}, // kind: request|accepted|rejected|review
	)

	// NotificationsDropped counts changes dropped during translation
	NotificationsDropped = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Total number of changes that produced no notification due to an error",
		},
		[]string{"reason"}, // reason: lookup|decode|listener_full
	)
)
