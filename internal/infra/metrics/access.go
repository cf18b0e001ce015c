package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		accessDecisionsTotal,
		accessCheckLatencyMs,
	)
}

var (
	accessDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "access_gate_decisions_total",
			Help: "Access gate outcomes by decision and reason.",
		},
		[]string{"decision", "reason"},
	)

	accessCheckLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "access_gate_check_latency_ms",
			Help:    "Entitlement check latency distribution in milliseconds.",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250, 500},
		},
	)
)

func IncAccessDecision(decision, reason string) {
	accessDecisionsTotal.WithLabelValues(norm(decision), norm(reason)).Inc()
}

func ObserveAccessLatency(d time.Duration) {
	accessCheckLatencyMs.Observe(float64(d.Milliseconds()))
}
