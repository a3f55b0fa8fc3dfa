package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fanout Metrics
var (
	// BroadcastActivePolls tracks number of polls with at least one subscriber
	BroadcastActivePolls = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_active_polls",
			Help: "Number of polls with at least one live subscriber",
		},
	)

	// BroadcastConnectedClients tracks total number of subscribed WebSocket clients
	BroadcastConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "broadcast_connected_clients",
			Help: "Total number of subscribed WebSocket clients across all polls",
		},
	)

	// BroadcastEventsPublished tracks events handed to the fanout by event type
	BroadcastEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_published_total",
			Help: "Total events published to the fanout by event type",
		},
		[]string{"type"},
	)

	// BroadcastEventsDelivered tracks frames written to subscribers
	BroadcastEventsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_events_delivered_total",
			Help: "Total event frames written to subscriber connections",
		},
	)

	// BroadcastEventsDropped tracks deliveries that never reached a subscriber
	BroadcastEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_dropped_total",
			Help: "Event deliveries dropped by reason (lagging, encode, no_subscribers)",
		},
		[]string{"reason"},
	)

	// BroadcastSendFailures tracks write failures that closed a connection
	BroadcastSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_send_failures_total",
			Help: "Total write failures that terminated a subscriber connection",
		},
	)

	// BroadcastStopTimeoutsTotal tracks broadcaster stops that exceeded timeout
	BroadcastStopTimeoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "broadcast_stop_timeouts_total",
			Help: "Broadcaster stops that exceeded timeout",
		},
	)
)

// WebSocket Metrics
var (
	// WebSocketMessageSendDuration tracks time to write one frame
	WebSocketMessageSendDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_message_send_duration_seconds",
			Help:    "Time to write one WebSocket frame",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	// WebSocketConnectionDuration tracks how long subscriber connections live
	WebSocketConnectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "websocket_connection_duration_seconds",
			Help:    "Lifetime of subscriber connections",
			Buckets: []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
		},
	)

	// WebSocketPingFailures tracks keepalive pings that could not be written
	WebSocketPingFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_ping_failures_total",
			Help: "Total WebSocket keepalive ping write failures",
		},
	)

	// ConnectionsRejected tracks connections rejected by limits
	ConnectionsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_connections_rejected_total",
			Help: "WebSocket connections rejected by reason",
		},
		[]string{"reason"},
	)

	// ConnectionCapacityPercent tracks global connection usage
	ConnectionCapacityPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connection_capacity_percent",
			Help: "Current connection usage as percentage of the global limit",
		},
	)
)

// Vote Metrics
var (
	// VotesTotal tracks vote submissions by result
	VotesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "votes_total",
			Help: "Vote submissions by result (accepted, rejected, rate_limited)",
		},
		[]string{"result"},
	)
)

// Mongo Metrics
var (
	// MongoOpsTotal tracks Mongo operations by operation and status
	MongoOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mongo_operations_total",
			Help: "Total Mongo operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// MongoOpDuration tracks Mongo operation latency in seconds
	MongoOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mongo_operation_duration_seconds",
			Help:    "Mongo operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)
)

// Redis Metrics
var (
	// RedisOpsTotal tracks total Redis operations by operation type and status
	RedisOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redis_operations_total",
			Help: "Total Redis operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// RedisOpDuration tracks Redis operation latency in seconds
	RedisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "redis_operation_duration_seconds",
			Help:    "Redis operation duration in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation"},
	)

	// RedisConnectionErrors tracks failed connection attempts to Redis
	RedisConnectionErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "redis_connection_errors_total",
			Help: "Total failed Redis connection attempts",
		},
	)

	// CircuitBreakerState tracks current circuit breaker state (0=closed, 1=half-open, 2=open)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"component"},
	)

	// CircuitBreakerStateChanges tracks circuit breaker state transitions
	CircuitBreakerStateChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_changes_total",
			Help: "Circuit breaker state transitions by component and new state",
		},
		[]string{"component", "state"},
	)
)
