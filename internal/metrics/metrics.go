package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sessionbook/internal/model"
)

const namespace = "sessionbook"

var (
	once sync.Once

	bookingOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Count of ledger operations by outcome.",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of engine operations.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	availabilityQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "availability_queries_total",
			Help:      "Count of availability and calendar reads.",
		},
		[]string{"kind"},
	)

	scheduleWarnings = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "schedule_warnings_total",
			Help:      "Count of windows saved with unused trailing minutes.",
		},
	)

	lockAcquisitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquisitions_total",
			Help:      "Count of booking lock acquisitions by backend and outcome.",
		},
		[]string{"backend", "outcome"},
	)

	bookingEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_events_total",
			Help:      "Count of published booking events.",
		},
		[]string{"type"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingOperations,
			operationDuration,
			availabilityQueries,
			scheduleWarnings,
			lockAcquisitions,
			bookingEvents,
			httpRequests,
		)
	})
}

// Outcome classifies err into a metric label.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrValidation):
		return "validation"
	case errors.Is(err, model.ErrNotFound):
		return "not_found"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}

// ObserveOperation records the outcome and latency of a ledger operation.
func ObserveOperation(operation string, started time.Time, err error) {
	bookingOperations.WithLabelValues(operation, Outcome(err)).Inc()
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

func IncAvailabilityQuery(kind string) {
	availabilityQueries.WithLabelValues(kind).Inc()
}

func AddScheduleWarnings(n int) {
	scheduleWarnings.Add(float64(n))
}

func IncLockAcquisition(backend, outcome string) {
	lockAcquisitions.WithLabelValues(backend, outcome).Inc()
}

func IncBookingEvent(eventType string) {
	bookingEvents.WithLabelValues(eventType).Inc()
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
