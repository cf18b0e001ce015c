package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		divergentPaymentsFound,
		divergentPaymentsRepaired,
		reconcileRunsTotal,
	)
}

var (
	divergentPaymentsFound = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_divergent_payments_found_total",
			Help: "Settled payments found without a matching active entitlement.",
		},
	)

	divergentPaymentsRepaired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_divergent_payments_repaired_total",
			Help: "Divergent payments processed by the recovery engine, by result.",
		},
		[]string{"result"}, // activated | already_active | failed
	)

	reconcileRunsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reconcile_runs_total",
			Help: "Completed reconciliation passes.",
		},
	)
)

func AddDivergentFound(n int)          { divergentPaymentsFound.Add(float64(n)) }
func IncDivergentRepaired(result string) {
	divergentPaymentsRepaired.WithLabelValues(norm(result)).Inc()
}
func IncReconcileRun() { reconcileRunsTotal.Inc() }
