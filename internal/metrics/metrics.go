package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Ledger operation outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped" // idempotency guard hit
	OutcomeFailed  = "failed"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "carpool_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	LedgerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_ledger_operations_total",
			Help: "Ledger operations by purpose and outcome",
		},
		[]string{"purpose", "outcome"},
	)

	LedgerPointsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_ledger_points_total",
			Help: "Carbon points moved by applied ledger operations",
		},
		[]string{"purpose"},
	)

	BookingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_booking_transitions_total",
			Help: "Booking status transitions by target status",
		},
		[]string{"status"},
	)

	RideTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_ride_transitions_total",
			Help: "Ride status transitions by target status",
		},
		[]string{"status"},
	)

	BookingRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_booking_rejections_total",
			Help: "Booking admissions rejected, by reason",
		},
		[]string{"reason"},
	)

	FanOutFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "carpool_fanout_failures_total",
			Help: "Per-booking failures during ride completion or cancellation",
		},
		[]string{"operation"},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordLedgerOperation(purpose, outcome string, points float64) {
	LedgerOperationsTotal.WithLabelValues(purpose, outcome).Inc()
	if outcome == OutcomeApplied && points > 0 {
		LedgerPointsTotal.WithLabelValues(purpose).Add(points)
	}
}

func RecordBookingTransition(status string) {
	BookingTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordRideTransition(status string) {
	RideTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordBookingRejection(reason string) {
	BookingRejectionsTotal.WithLabelValues(reason).Inc()
}

func RecordFanOutFailure(operation string) {
	FanOutFailuresTotal.WithLabelValues(operation).Inc()
}
