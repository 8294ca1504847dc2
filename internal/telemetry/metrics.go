package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for shipping and order lifecycle
// observability.
type Metrics struct {
	// Shipments
	ShipmentsCreated   *prometheus.CounterVec // provider
	ShipmentsFailed    *prometheus.CounterVec // provider, code
	ShipmentsOrphaned  prometheus.Counter     // created courier-side but not persisted
	CourierRequestTime *prometheus.HistogramVec

	// Orders
	StatusTransitions *prometheus.CounterVec // from, to
	OrdersCancelled   prometheus.Counter

	// Tracking
	TrackingResolutions *prometheus.CounterVec // source: cache|live|history
	TrackingFailures    prometheus.Counter

	// Notifications
	NotificationsSent   *prometheus.CounterVec // kind
	NotificationsFailed *prometheus.CounterVec // kind
}

// NewMetrics creates and registers all metrics with the given registerer.
// Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ShipmentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_shipments_created_total",
			Help: "Courier shipments created, by provider",
		}, []string{"provider"}),

		ShipmentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_shipments_failed_total",
			Help: "Failed shipment creation attempts, by provider and error code",
		}, []string{"provider", "code"}),

		ShipmentsOrphaned: factory.NewCounter(prometheus.CounterOpts{
			Name: "nm_shipments_orphaned_total",
			Help: "Shipments created at the courier but not persisted locally",
		}),

		CourierRequestTime: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "nm_courier_request_duration_seconds",
			Help:    "Courier API request latency, by provider and operation",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20},
		}, []string{"provider", "operation"}),

		StatusTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_order_status_transitions_total",
			Help: "Order status transitions, by from and to status",
		}, []string{"from", "to"}),

		OrdersCancelled: factory.NewCounter(prometheus.CounterOpts{
			Name: "nm_orders_cancelled_total",
			Help: "Orders cancelled",
		}),

		TrackingResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_tracking_resolutions_total",
			Help: "Successful tracking resolutions, by source",
		}, []string{"source"}),

		TrackingFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "nm_tracking_failures_total",
			Help: "Tracking lookups that resolved to nothing",
		}),

		NotificationsSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_notifications_sent_total",
			Help: "Notifications delivered, by event kind",
		}, []string{"kind"}),

		NotificationsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "nm_notifications_failed_total",
			Help: "Notification delivery failures, by event kind",
		}, []string{"kind"}),
	}
}

// NewTestMetrics creates metrics on a throwaway registry, for tests.
func NewTestMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
