package circuit_breaker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tether_circuit_breaker_state",
			Help: "The current state of the circuit breaker (0: Closed, 1: Half-Open, 2: Open)",
		},
		[]string{"key"},
	)

	breakerOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tether_circuit_breaker_attempts_total",
			Help: "The total number of attempt outcomes recorded by the circuit breaker",
		},
		[]string{"key", "result"},
	)
)

func updateStateMetric(key string, s State) {
	breakerState.WithLabelValues(key).Set(float64(s))
}
