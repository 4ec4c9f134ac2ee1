package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus metrics
type Metrics struct {
	SeatReservations       *prometheus.CounterVec
	SeatTransitions        *prometheus.CounterVec
	HoldsExpired           prometheus.Counter
	BookingsCreated        prometheus.Counter
	BookingsConfirmed      prometheus.Counter
	BookingsCancelled      *prometheus.CounterVec
	PaymentCaptures        *prometheus.CounterVec
	PaymentCaptureDuration prometheus.Histogram
	RefundDecisions        *prometheus.CounterVec
	HTTPRequests           *prometheus.CounterVec
	HTTPRequestDuration    *prometheus.HistogramVec
}

// NewMetrics creates new prometheus metrics registered on reg.
// Pass prometheus.DefaultRegisterer in the server and a fresh registry in tests.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		SeatReservations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_reservations_total",
			Help:      "Seat reservation attempts by outcome",
		}, []string{"outcome"}),
		SeatTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_transitions_total",
			Help:      "Seat confirm and release transitions",
		}, []string{"transition"}),
		HoldsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "seat_holds_expired_total",
			Help:      "Reserved seats returned to inventory after their hold lapsed",
		}),
		BookingsCreated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_created_total",
			Help:      "The total number of bookings opened",
		}),
		BookingsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_confirmed_total",
			Help:      "The total number of bookings confirmed after payment",
		}),
		BookingsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_cancelled_total",
			Help:      "Cancelled bookings by reason",
		}, []string{"reason"}),
		PaymentCaptures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_captures_total",
			Help:      "Payment capture attempts by result",
		}, []string{"result"}),
		PaymentCaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_capture_duration_seconds",
			Help:      "Time taken by the payment gateway to answer a capture",
			Buckets:   prometheus.DefBuckets,
		}),
		RefundDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refund_decisions_total",
			Help:      "Reviewer refund transitions by resulting status",
		}, []string{"decision"}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// NewNopMetrics returns metrics bound to a private registry that nothing scrapes
func NewNopMetrics() *Metrics {
	return NewMetrics("nop", prometheus.NewRegistry())
}
