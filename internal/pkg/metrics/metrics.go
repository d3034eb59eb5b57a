package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OrderMetrics counts lifecycle transitions by event and outcome so that
// rejected transitions (authorization, invalid status, unavailable products)
// are visible next to the successful ones.
type OrderMetrics struct {
	Transitions *prometheus.CounterVec
}

func NewOrderMetrics() *OrderMetrics {
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "marketplace",
		Subsystem: "orders",
		Name:      "transitions_total",
		Help:      "Total number of order lifecycle transition attempts.",
	}, []string{"event", "outcome"})

	prometheus.MustRegister(transitions)
	return &OrderMetrics{Transitions: transitions}
}

// Observe records one transition attempt. Nil-safe so tests can pass a nil
// metrics handle.
func (m *OrderMetrics) Observe(event, outcome string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(event, outcome).Inc()
}

// Handler exposes the registered metrics for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}
