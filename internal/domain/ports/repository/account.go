package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

// AccountRepository is the port for accounts and their embedded
// entitlement snapshot.
type AccountRepository interface {
	Save(ctx context.Context, tx Tx, a *model.Account) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, tx Tx, email string) (*model.Account, error)

	// UpdateEntitlement writes only the snapshot columns of the account row.
	UpdateEntitlement(ctx context.Context, tx Tx, accountID string, snap *model.EntitlementSnapshot) error

	// ListWithActiveTrial returns accounts whose snapshot still claims an
	// unexpired-or-just-expired trial; used by the trial monitor.
	ListWithActiveTrial(ctx context.Context, tx Tx, limit int) ([]*model.Account, error)
}
