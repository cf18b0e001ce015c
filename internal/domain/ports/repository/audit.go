package repository

import (
	"context"
	"time"

	"subscription-billing/internal/domain/model"
)

// AuditRepository is the port for the append-only audit sink.
type AuditRepository interface {
	Append(ctx context.Context, tx Tx, e *model.AuditEvent) error
	ListByAccount(ctx context.Context, tx Tx, accountID string, since time.Time, limit int) ([]*model.AuditEvent, error)
}
