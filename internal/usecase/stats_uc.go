package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"
)

// revenuePeriods are the SQL date_trunc buckets the revenue gauge tracks.
var revenuePeriods = []string{"day", "month"}

type StatsUseCase interface {
	// Collect refreshes the subscription and revenue gauges from the
	// store. Gauges, not counters: each pass overwrites the previous
	// values, so running it from more than one instance is harmless.
	Collect(ctx context.Context) error
}

type statsUC struct {
	subs         repository.SubscriptionRepository
	transactions repository.TransactionRepository
	log          *zerolog.Logger
}

var _ StatsUseCase = (*statsUC)(nil)

func NewStatsUseCase(
	subs repository.SubscriptionRepository,
	transactions repository.TransactionRepository,
	logger *zerolog.Logger,
) *statsUC {
	stLog := logger.With().Str("component", "StatsUseCase").Logger()
	return &statsUC{subs: subs, transactions: transactions, log: &stLog}
}

func (u *statsUC) Collect(ctx context.Context) error {
	counts, err := u.subs.CountByStatus(ctx)
	if err != nil {
		return err
	}
	metrics.SetSubscriptionsTotal(counts)

	for _, period := range revenuePeriods {
		sum, err := u.transactions.SumByPeriod(ctx, nil, period)
		if err != nil {
			return err
		}
		metrics.SetRevenuePeriod(period, sum)
	}

	u.log.Debug().Int("statuses", len(counts)).Msg("gauges refreshed")
	return nil
}
