package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hutkeeper",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint and status.",
		},
		[]string{"endpoint", "status"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "hutkeeper",
			Name:      "reservation_transitions_total",
			Help:      "Reservation lifecycle transitions by target status.",
		},
		[]string{"to"},
	)

	pendingReservations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "hutkeeper",
			Name:      "pending_reservations",
			Help:      "Reservations currently awaiting an admin decision.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(httpRequests, transitions, pendingReservations)
	})
}

// IncHTTP increments the request counter for an endpoint/status pair.
func IncHTTP(endpoint, status string) {
	httpRequests.WithLabelValues(endpoint, status).Inc()
}

// IncTransition increments the transition counter for a target status.
func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

// SetPending records the current pending-reservation count.
func SetPending(n int) {
	pendingReservations.Set(float64(n))
}
