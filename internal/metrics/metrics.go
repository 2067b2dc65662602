// Package metrics holds the Prometheus collectors for the room coordination layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyrooms_websocket_connections",
			Help: "Current number of authenticated websocket connections",
		},
	)

	RoomSubscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "studyrooms_room_subscriptions",
			Help: "Current number of connections subscribed to a room channel",
		},
	)

	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyrooms_events_received_total",
			Help: "Inbound websocket events accepted for dispatch",
		},
		[]string{"event"},
	)

	EventErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyrooms_event_errors_total",
			Help: "Inbound events answered with an error, by error kind",
		},
		[]string{"event", "kind"},
	)

	EventsRateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyrooms_events_rate_limited_total",
			Help: "Inbound events dropped by the per-connection rate limiter",
		},
	)

	BroadcastsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyrooms_broadcast_dropped_total",
			Help: "Outbound frames dropped because a connection's send buffer was full",
		},
	)

	MirrorPublishErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "studyrooms_mirror_publish_errors_total",
			Help: "Room events that could not be mirrored to Redis",
		},
	)

	SessionsEnded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "studyrooms_sessions_ended_total",
			Help: "Study sessions completed by this process, by cause",
		},
		[]string{"cause"}, // "explicit", "left", "disconnect", "reaped"
	)
)
