package repository

import (
	"context"
	"time"

	"subscription-billing/internal/domain/model"
)

// TransactionRepository is the port for the payment ledger.
type TransactionRepository interface {
	Save(ctx context.Context, tx Tx, t *model.Transaction) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Transaction, error)

	// FindByProviderTransactionID looks a row up by the settlement id, the
	// idempotency key for webhook replays.
	FindByProviderTransactionID(ctx context.Context, tx Tx, provider, providerTxID string) (*model.Transaction, error)

	// FindByPreferenceID is the fallback lookup when a webhook carries only
	// the checkout intent id.
	FindByPreferenceID(ctx context.Context, tx Tx, provider, preferenceID string) (*model.Transaction, error)

	// UpdateStatus advances a row; providerTxID/processedAt are only written
	// when non-nil.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.TransactionStatus, providerTxID *string, processedAt *time.Time, errInfo *string) error

	// ListCompletedSubscriptionsSince returns settled subscription rows in
	// the reconciliation window, oldest first.
	ListCompletedSubscriptionsSince(ctx context.Context, tx Tx, since time.Time, limit int) ([]*model.Transaction, error)

	// SumByPeriod totals settled revenue since the start of the given
	// date_trunc period ("week", "month", "year").
	SumByPeriod(ctx context.Context, tx Tx, period string) (int64, error)
}
