package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		transactionsTotal,
		revenueTotal,
		revenuePeriod,
		webhookEventsTotal,
	)
}

var (
	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_transactions_total",
			Help: "Ledger transitions by resulting status (pending/processing/completed/failed/refunded/canceled).",
		},
		[]string{"provider", "status"},
	)

	revenueTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_revenue_total",
			Help: "The total monetary value of settled payments, labeled by currency.",
		},
		[]string{"currency"},
	)

	revenuePeriod = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_revenue_period",
			Help: "Settled revenue since the start of the current period bucket (day/month).",
		},
		[]string{"period"},
	)

	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_webhook_events_total",
			Help: "Inbound provider events by kind and outcome (applied/duplicate/unmatched/rejected).",
		},
		[]string{"kind", "outcome"},
	)
)

func IncTransaction(provider, status string) {
	transactionsTotal.WithLabelValues(norm(provider), norm(status)).Inc()
}

func AddRevenue(currency string, amount int64) {
	revenueTotal.WithLabelValues(norm(currency)).Add(float64(amount))
}

func SetRevenuePeriod(period string, amount int64) {
	revenuePeriod.WithLabelValues(norm(period)).Set(float64(amount))
}

func IncWebhookEvent(kind, outcome string) {
	webhookEventsTotal.WithLabelValues(norm(kind), norm(outcome)).Inc()
}
