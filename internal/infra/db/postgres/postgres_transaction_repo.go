package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.TransactionRepository = (*transactionRepo)(nil)

type transactionRepo struct{ pool *pgxpool.Pool }

func NewTransactionRepo(pool *pgxpool.Pool) *transactionRepo {
	return &transactionRepo{pool: pool}
}

const transactionColumns = `
  id, account_id, type, amount, currency, status,
  provider, provider_tx_id, provider_preference_id, related_subscription_id, plan,
  processed_at, error_info, created_at, updated_at`

func (r *transactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	const q = `
INSERT INTO transactions (
  id, account_id, type, amount, currency, status,
  provider, provider_tx_id, provider_preference_id, related_subscription_id, plan,
  processed_at, error_info, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW())
ON CONFLICT (id) DO UPDATE SET
  status=$6, provider_tx_id=$8, related_subscription_id=$10,
  processed_at=$12, error_info=$13, updated_at=NOW();`

	_, err := execSQL(ctx, r.pool, tx, q,
		t.ID, t.AccountID, t.Type, t.Amount, t.Currency, t.Status,
		t.Provider, nullStr(t.ProviderTransactionID), nullStr(t.ProviderPreferenceID),
		t.RelatedSubscriptionID, t.Plan,
		t.ProcessedAt, t.ErrorInfo, t.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		// UNIQUE(provider, provider_tx_id) on settled rows: the same
		// settlement was already recorded by a concurrent delivery.
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *transactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	q := `SELECT` + transactionColumns + ` FROM transactions WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", id)
}

func (r *transactionRepo) FindByProviderTransactionID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Transaction, error) {
	q := `SELECT` + transactionColumns + ` FROM transactions WHERE provider=$1 AND provider_tx_id=$2 LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", provider, providerTxID)
}

func (r *transactionRepo) FindByPreferenceID(ctx context.Context, tx repository.Tx, provider, preferenceID string) (*model.Transaction, error) {
	q := `SELECT` + transactionColumns + ` FROM transactions WHERE provider=$1 AND provider_preference_id=$2 ORDER BY created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	return r.queryOne(ctx, tx, q+";", provider, preferenceID)
}

func (r *transactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, providerTxID *string, processedAt *time.Time, errInfo *string) error {
	const q = `
UPDATE transactions SET
  status=$2,
  provider_tx_id=COALESCE($3, provider_tx_id),
  processed_at=COALESCE($4, processed_at),
  error_info=COALESCE($5, error_info),
  updated_at=NOW()
WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, status, providerTxID, processedAt, errInfo)
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

func (r *transactionRepo) ListCompletedSubscriptionsSince(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.Transaction, error) {
	const q = `
SELECT` + transactionColumns + `
  FROM transactions
 WHERE status='completed' AND type='subscription' AND processed_at >= $1
 ORDER BY processed_at ASC
 LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, since, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *transactionRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	const q = `SELECT COALESCE(SUM(amount),0) FROM transactions WHERE status='completed' AND processed_at >= DATE_TRUNC($1, NOW());`
	row, err := pickRow(ctx, r.pool, tx, q, period)
	if err != nil {
		return 0, err
	}
	var sum int64
	if err := row.Scan(&sum); err != nil {
		return 0, domain.ErrReadDatabaseRow
	}
	return sum, nil
}

func (r *transactionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Transaction, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	t, err := scanTransaction(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return t, nil
}

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	t := &model.Transaction{}
	var providerTxID, preferenceID *string
	if err := row.Scan(
		&t.ID, &t.AccountID, &t.Type, &t.Amount, &t.Currency, &t.Status,
		&t.Provider, &providerTxID, &preferenceID, &t.RelatedSubscriptionID, &t.Plan,
		&t.ProcessedAt, &t.ErrorInfo, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if providerTxID != nil {
		t.ProviderTransactionID = *providerTxID
	}
	if preferenceID != nil {
		t.ProviderPreferenceID = *preferenceID
	}
	return t, nil
}
