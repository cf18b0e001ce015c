package metrics

import (
	"subscription-billing/internal/domain/model"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		activationsTotal,
		trialsExpiredTotal,
		trialNotificationsTotal,
		subscriptionsTotal,
	)
}

var (
	activationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_activations_total",
			Help: "Entitlement grants by source (webhook/receipt/reconciliation).",
		},
		[]string{"source"},
	)

	trialsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "subscription_trials_expired_total",
			Help: "Trials transitioned to expired by the monitor or the access gate.",
		},
	)

	trialNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscription_trial_notifications_total",
			Help: "Trial-ending notification decisions by remaining-days threshold.",
		},
		[]string{"days"},
	)

	subscriptionsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subscriptions_total",
			Help: "Current number of subscription records by status.",
		},
		[]string{"status"},
	)
)

func IncActivation(source string) {
	activationsTotal.WithLabelValues(norm(source)).Inc()
}

func IncTrialsExpired(count int) {
	trialsExpiredTotal.Add(float64(count))
}

func IncTrialNotification(days string) {
	trialNotificationsTotal.WithLabelValues(days).Inc()
}

func SetSubscriptionsTotal(counts map[model.SubscriptionStatus]int) {
	for status, count := range counts {
		subscriptionsTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
