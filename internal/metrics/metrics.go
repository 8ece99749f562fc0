// Package metrics - Prometheus-метрики рассылки, live-канала и внешних сервисов.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Dispatch Metrics
	IncidentsReported = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_incidents_reported_total",
			Help: "Total number of reported emergencies",
		},
		[]string{"emergency_type"},
	)

	NotificationsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_notifications_created_total",
			Help: "Total number of notification records persisted",
		},
		[]string{"type"},
	)

	DispatchPartialFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_partial_failures_total",
			Help: "Emergencies persisted whose recipient fan-out failed",
		},
		[]string{"stage"}, // "geo_index", "notification_store"
	)

	ResponderTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_responder_transitions_total",
			Help: "Total number of responder status transitions",
		},
		[]string{"status"},
	)

	OptimisticRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dispatch_optimistic_retries_total",
			Help: "Emergency updates retried after a version conflict",
		},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages queued for delivery",
		},
	)

	WSMessagesReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_messages_received_total",
			Help: "Total number of WebSocket messages received",
		},
		[]string{"event"},
	)

	WSMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Messages dropped because the client send buffer was full",
		},
	)

	// Circuit Breaker Metrics
	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Cache Metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache_type"},
	)
)

// RecordCacheLookup учитывает попадание или промах кэша
func RecordCacheLookup(cacheType string, hit bool) {
	if hit {
		CacheHits.WithLabelValues(cacheType).Inc()
		return
	}
	CacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordBreakerTransition учитывает смену состояния выключателя
func RecordBreakerTransition(name, from, to string) {
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
