package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.AccountRepository = (*accountRepo)(nil)

type accountRepo struct{ pool *pgxpool.Pool }

func NewAccountRepo(pool *pgxpool.Pool) *accountRepo {
	return &accountRepo{pool: pool}
}

const accountColumns = `
  id, email, name, created_at, last_active_at,
  ent_status, ent_plan, ent_trial_start, ent_trial_end,
  ent_subscription_start, ent_subscription_end, ent_provider, ent_provider_tx_id`

func (r *accountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	const q = `
INSERT INTO accounts (
  id, email, name, created_at, last_active_at,
  ent_status, ent_plan, ent_trial_start, ent_trial_end,
  ent_subscription_start, ent_subscription_end, ent_provider, ent_provider_tx_id
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET
  email=$2, name=$3, last_active_at=$5,
  ent_status=$6, ent_plan=$7, ent_trial_start=$8, ent_trial_end=$9,
  ent_subscription_start=$10, ent_subscription_end=$11, ent_provider=$12, ent_provider_tx_id=$13;`

	e := &a.Entitlement
	_, err := execSQL(ctx, r.pool, tx, q,
		a.ID, a.Email, a.Name, a.CreatedAt, a.LastActiveAt,
		e.Status, nullStr(string(e.Plan)), e.TrialStart, e.TrialEnd,
		e.SubscriptionStart, e.SubscriptionEnd, nullStr(e.Provider), nullStr(e.ProviderTransactionID))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *accountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	return r.queryOne(ctx, tx, `SELECT`+accountColumns+` FROM accounts WHERE id=$1;`, id)
}

func (r *accountRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Account, error) {
	return r.queryOne(ctx, tx, `SELECT`+accountColumns+` FROM accounts WHERE email=$1 LIMIT 1;`, email)
}

// UpdateEntitlement writes only the snapshot columns of the account row.
func (r *accountRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, accountID string, snap *model.EntitlementSnapshot) error {
	const q = `
UPDATE accounts SET
  ent_status=$2, ent_plan=$3, ent_trial_start=$4, ent_trial_end=$5,
  ent_subscription_start=$6, ent_subscription_end=$7, ent_provider=$8, ent_provider_tx_id=$9
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q,
		accountID, snap.Status, nullStr(string(snap.Plan)), snap.TrialStart, snap.TrialEnd,
		snap.SubscriptionStart, snap.SubscriptionEnd, nullStr(snap.Provider), nullStr(snap.ProviderTransactionID))
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) ListWithActiveTrial(ctx context.Context, tx repository.Tx, limit int) ([]*model.Account, error) {
	const q = `
SELECT` + accountColumns + `
  FROM accounts
 WHERE ent_status='trial' AND ent_trial_end IS NOT NULL
 ORDER BY ent_trial_end ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *accountRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Account, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	a, err := scanAccount(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return a, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	a := &model.Account{}
	var plan, provider, providerTxID *string
	if err := row.Scan(
		&a.ID, &a.Email, &a.Name, &a.CreatedAt, &a.LastActiveAt,
		&a.Entitlement.Status, &plan, &a.Entitlement.TrialStart, &a.Entitlement.TrialEnd,
		&a.Entitlement.SubscriptionStart, &a.Entitlement.SubscriptionEnd, &provider, &providerTxID,
	); err != nil {
		return nil, err
	}
	if plan != nil {
		a.Entitlement.Plan = model.PlanCode(*plan)
	}
	if provider != nil {
		a.Entitlement.Provider = *provider
	}
	if providerTxID != nil {
		a.Entitlement.ProviderTransactionID = *providerTxID
	}
	return a, nil
}

func nullStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
