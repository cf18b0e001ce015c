package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct{ pool *pgxpool.Pool }

func NewNotificationLogRepo(pool *pgxpool.Pool) *notificationLogRepo {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, accountID, kind string, thresholdDays int, day string) error {
	const q = `
INSERT INTO notification_log (id, account_id, kind, threshold_days, day, sent_at)
VALUES ($1,$2,$3,$4,$5,NOW());`
	_, err := execSQL(ctx, r.pool, tx, q, uuid.NewString(), accountID, kind, thresholdDays, day)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		// UNIQUE(account_id, kind, day) dedupes a scan that runs more than
		// once per day, even when the countdown crossed a threshold between
		// passes.
		if isUniqueViolation(err) {
			return domain.ErrAlreadyExists
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *notificationLogRepo) Exists(ctx context.Context, tx repository.Tx, accountID, kind, day string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM notification_log
   WHERE account_id=$1 AND kind=$2 AND day=$3
);`
	row, err := pickRow(ctx, r.pool, tx, q, accountID, kind, day)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
