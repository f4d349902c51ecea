package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Run metrics
	ActiveSessionsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "hustrun_active_sessions",
			Help: "Current number of sessions in RUNNING or PAUSED state",
		},
	)

	SessionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hustrun_sessions_total",
			Help: "Total number of sessions by terminal status",
		},
		[]string{"status"},
	)

	WaypointsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hustrun_waypoints_total",
			Help: "Waypoints processed by outcome (sent, skipped)",
		},
		[]string{"outcome"},
	)

	DeviceCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hustrun_device_calls_total",
			Help: "Total number of device bridge calls",
		},
		[]string{"call", "status"},
	)

	DeviceCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hustrun_device_call_duration_seconds",
			Help:    "Device bridge call duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"call"},
	)

	HistoryFlushesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hustrun_history_flushes_total",
			Help: "History tick flushes by status",
		},
		[]string{"status"},
	)

	EventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "hustrun_events_dropped_total",
			Help: "Session events dropped because the dispatcher buffer was full",
		},
	)

	RabbitMQMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rabbitmq_messages_published_total",
			Help: "Total number of messages published to RabbitMQ",
		},
		[]string{"exchange", "status"},
	)

	MQTTMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mqtt_messages_published_total",
			Help: "Total number of telemetry messages published to MQTT",
		},
		[]string{"status"},
	)

	DatabaseQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "database_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)
)

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordHTTPMetrics records HTTP request metrics
func RecordHTTPMetrics(method, path string, statusCode int, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(statusCode)).Inc()
	HttpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDeviceCall records one device bridge call
func RecordDeviceCall(call string, err error, duration time.Duration) {
	DeviceCallsTotal.WithLabelValues(call, status(err)).Inc()
	DeviceCallDuration.WithLabelValues(call).Observe(duration.Seconds())
}

// RecordDatabaseQuery records database query metrics
func RecordDatabaseQuery(operation string, err error, duration time.Duration) {
	DatabaseQueryDuration.WithLabelValues(operation, status(err)).Observe(duration.Seconds())
}

// RecordRabbitMQPublish records RabbitMQ publish metrics
func RecordRabbitMQPublish(exchange string, err error) {
	RabbitMQMessagesPublished.WithLabelValues(exchange, status(err)).Inc()
}

// RecordHistoryFlush records a recorder flush
func RecordHistoryFlush(err error) {
	HistoryFlushesTotal.WithLabelValues(status(err)).Inc()
}

// RecordMQTTPublish records one telemetry publish
func RecordMQTTPublish(err error) {
	MQTTMessagesPublished.WithLabelValues(status(err)).Inc()
}
