package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
)

var _ repository.AuditRepository = (*auditRepo)(nil)

// auditRepo writes the append-only audit sink. There is no update path on
// purpose.
type auditRepo struct{ pool *pgxpool.Pool }

func NewAuditRepo(pool *pgxpool.Pool) *auditRepo {
	return &auditRepo{pool: pool}
}

func (r *auditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEvent) error {
	const q = `
INSERT INTO audit_events (id, ts, event_type, account_id, transaction_id, payload)
VALUES ($1,$2,$3,$4,$5,$6);`
	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.Timestamp, e.EventType, nullStr(e.AccountID), nullStr(e.TransactionID), e.Payload)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *auditRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, since time.Time, limit int) ([]*model.AuditEvent, error) {
	const q = `
SELECT id, ts, event_type, account_id, transaction_id, payload
  FROM audit_events
 WHERE account_id=$1 AND ts >= $2
 ORDER BY id ASC
 LIMIT $3;`
	rows, err := queryRows(ctx, r.pool, tx, q, accountID, since, limit)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return nil, err
		}
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	var out []*model.AuditEvent
	for rows.Next() {
		e := &model.AuditEvent{}
		var accID, txID *string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.EventType, &accID, &txID, &e.Payload); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		if accID != nil {
			e.AccountID = *accID
		}
		if txID != nil {
			e.TransactionID = *txID
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}
