package repository

import (
	"context"

	"subscription-billing/internal/domain/model"
)

// SubscriptionRepository is the port for normalized subscription records.
// The store enforces at most one record per account; Save surfaces
// domain.ErrAlreadyExists when a concurrent creation lost that race so the
// caller can re-read and update the winner's row.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, s *model.Subscription) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Subscription, error)
	FindByAccount(ctx context.Context, tx Tx, accountID string) (*model.Subscription, error)
	FindByProviderSubscriptionID(ctx context.Context, tx Tx, provider, providerSubID string) (*model.Subscription, error)

	// FindTrialing returns trialing records whose trial window ends before
	// the horizon (including already-past windows), oldest first.
	FindTrialing(ctx context.Context, tx Tx, withinDays int, limit int) ([]*model.Subscription, error)

	// CountByStatus feeds the subscription gauge.
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
}
