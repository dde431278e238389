package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsTotal counts webhook notification attempts by result.
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_notifications_total",
		Help: "Total webhook notifications by result",
	}, []string{"result"})

	// BreakerState publishes circuit breaker positions as a gauge:
	// 0 closed, 1 half-open, 2 open.
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "benchd_breaker_state",
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
	}, []string{"name"})

	// BreakerTripsTotal counts breaker trips by name and reason.
	BreakerTripsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "benchd_breaker_trips_total",
		Help: "Total circuit breaker trips by name and reason",
	}, []string{"name", "reason"})
)

// IncNotification records one webhook delivery attempt.
func IncNotification(result string) {
	NotificationsTotal.WithLabelValues(result).Inc()
}

// SetBreakerState records a circuit breaker state transition.
func SetBreakerState(name, state string) {
	var v float64
	switch state {
	case "half-open":
		v = 1
	case "open":
		v = 2
	}
	BreakerState.WithLabelValues(name).Set(v)
}

// IncBreakerTrip counts one breaker trip.
func IncBreakerTrip(name, reason string) {
	BreakerTripsTotal.WithLabelValues(name, reason).Inc()
}
