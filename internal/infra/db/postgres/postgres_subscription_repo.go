package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

type subscriptionRepo struct{ pool *pgxpool.Pool }

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

const subscriptionColumns = `
  id, account_id, plan, status,
  current_period_start, current_period_end, cancel_at_period_end, canceled_at, ended_at,
  trial_start, trial_end,
  provider, provider_subscription_id, provider_customer_id, provider_tx_id, provider_preference_id,
  created_at, updated_at`

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	const q = `
INSERT INTO subscriptions (
  id, account_id, plan, status,
  current_period_start, current_period_end, cancel_at_period_end, canceled_at, ended_at,
  trial_start, trial_end,
  provider, provider_subscription_id, provider_customer_id, provider_tx_id, provider_preference_id,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,NOW())
ON CONFLICT (id) DO UPDATE SET
  plan=$3, status=$4,
  current_period_start=$5, current_period_end=$6, cancel_at_period_end=$7, canceled_at=$8, ended_at=$9,
  trial_start=$10, trial_end=$11,
  provider=$12, provider_subscription_id=$13, provider_customer_id=$14, provider_tx_id=$15, provider_preference_id=$16,
  updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.AccountID, s.Plan, s.Status,
		s.CurrentPeriodStart, s.CurrentPeriodEnd, s.CancelAtPeriodEnd, s.CanceledAt, s.EndedAt,
		s.TrialStart, s.TrialEnd,
		nullStr(s.Provider), nullStr(s.ProviderSubscriptionID), nullStr(s.ProviderCustomerID),
		nullStr(s.ProviderTransactionID), nullStr(s.ProviderPreferenceID),
		s.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		// UNIQUE(account_id): a concurrent insert created the account's
		// record first; the caller must re-read and update that row.
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

func (r *subscriptionRepo) FindByAccount(ctx context.Context, tx repository.Tx, accountID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE account_id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", accountID)
}

func (r *subscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, tx repository.Tx, provider, providerSubID string) (*model.Subscription, error) {
	q := `SELECT` + subscriptionColumns + ` FROM subscriptions WHERE provider=$1 AND provider_subscription_id=$2 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", provider, providerSubID)
}

func (r *subscriptionRepo) FindTrialing(ctx context.Context, tx repository.Tx, withinDays int, limit int) ([]*model.Subscription, error) {
	const q = `
SELECT` + subscriptionColumns + `
  FROM subscriptions
 WHERE status='trialing'
   AND trial_end IS NOT NULL
   AND trial_end <= NOW() + ($1::int * INTERVAL '1 day')
 ORDER BY trial_end ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, withinDays, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Subscription
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, nil, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	out := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status model.SubscriptionStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Subscription, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return s, nil
}

func scanSubscription(row rowScanner) (*model.Subscription, error) {
	s := &model.Subscription{}
	var provider, providerSubID, providerCustID, providerTxID, providerPrefID *string
	if err := row.Scan(
		&s.ID, &s.AccountID, &s.Plan, &s.Status,
		&s.CurrentPeriodStart, &s.CurrentPeriodEnd, &s.CancelAtPeriodEnd, &s.CanceledAt, &s.EndedAt,
		&s.TrialStart, &s.TrialEnd,
		&provider, &providerSubID, &providerCustID, &providerTxID, &providerPrefID,
		&s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if provider != nil {
		s.Provider = *provider
	}
	if providerSubID != nil {
		s.ProviderSubscriptionID = *providerSubID
	}
	if providerCustID != nil {
		s.ProviderCustomerID = *providerCustID
	}
	if providerTxID != nil {
		s.ProviderTransactionID = *providerTxID
	}
	if providerPrefID != nil {
		s.ProviderPreferenceID = *providerPrefID
	}
	return s, nil
}
