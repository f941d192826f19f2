package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Notification fan-out
	NotificationsDispatched *prometheus.CounterVec
	NotificationsPersisted  *prometheus.CounterVec
	ChannelSends            *prometheus.CounterVec
	ChannelLatency          *prometheus.HistogramVec
	DispatchLatency         prometheus.Histogram

	// Lifecycle and sweeps
	RequestTransitions *prometheus.CounterVec
	SweepItems         *prometheus.CounterVec
	SweepDuration      *prometheus.HistogramVec

	// Realtime sessions
	RealtimeSessions prometheus.Gauge
	RealtimeEmits    *prometheus.CounterVec

	// HTTP
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Database metrics
	DatabaseOperations *prometheus.CounterVec
}

// New creates and registers all application metrics on reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsDispatched: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "dispatched_total",
			Help:      "Notifications dispatched by type",
		}, []string{"type"}),
		NotificationsPersisted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "persisted_total",
			Help:      "Notification records written, by outcome",
		}, []string{"status"}),
		ChannelSends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "channel_sends_total",
			Help:      "Delivery attempts per channel and outcome",
		}, []string{"channel", "outcome"}),
		ChannelLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "channel_send_duration_seconds",
			Help:      "Time spent in a single channel send",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"channel"}),
		DispatchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "notification",
			Name:      "dispatch_duration_seconds",
			Help:      "Time spent on a whole dispatch call",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),

		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "blood_request",
			Name:      "transitions_total",
			Help:      "Blood request status transitions",
		}, []string{"to"}),
		SweepItems: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sweep_items_total",
			Help:      "Items handled by background sweeps, by outcome",
		}, []string{"sweep", "outcome"}),
		SweepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of background sweeps",
			Buckets:   prometheus.DefBuckets,
		}, []string{"sweep"}),

		RealtimeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "sessions",
			Help:      "Connected websocket sessions on this instance",
		}),
		RealtimeEmits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "emits_total",
			Help:      "Events written to local sessions, by outcome",
		}, []string{"outcome"}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		DatabaseOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "operations_total",
			Help:      "Total number of database operations",
		}, []string{"operation", "status"}),
	}
}

// NewNop returns metrics registered on a private registry. Useful for tests
// and tools that do not expose /metrics.
func NewNop() *Metrics {
	return New("lifedrop", prometheus.NewRegistry())
}
