package usecase

import (
	"context"
	"errors"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Activator is the one code path that grants entitlement. Both the live
// webhook flow and the recovery engine go through it, so a payment settled
// twice or repaired by reconciliation produces the same state.
//
// Callers decide WHEN to activate (first settlement, detected divergence);
// the activator itself only applies the grant. Re-applying with the same
// transaction keeps the subscription active and never moves an entitlement
// backwards, which is what makes at-least-once webhook delivery safe.
type Activator struct {
	accounts repository.AccountRepository
	subs     repository.SubscriptionRepository
	log      *zerolog.Logger
}

func NewActivator(accounts repository.AccountRepository, subs repository.SubscriptionRepository, logger *zerolog.Logger) *Activator {
	actLog := logger.With().Str("component", "Activator").Logger()
	return &Activator{accounts: accounts, subs: subs, log: &actLog}
}

// ActivateFromTransaction grants one billing period for a settled
// subscription transaction, writing both entitlement representations.
func (a *Activator) ActivateFromTransaction(ctx context.Context, tx repository.Tx, t *model.Transaction) (*model.Subscription, error) {
	if t == nil || t.AccountID == "" {
		return nil, domain.ErrInvalidArgument
	}
	plan, err := model.PlanByCode(t.Plan)
	if err != nil {
		return nil, err
	}

	sub, err := a.subs.FindByAccount(ctx, tx, t.AccountID)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		sub = &model.Subscription{
			ID:        uuid.NewString(),
			AccountID: t.AccountID,
			CreatedAt: time.Now(),
		}
	default:
		return nil, err
	}

	now := time.Now()
	periodEnd := plan.PeriodEnd(now)

	sub.Plan = plan.Code
	sub.Status = model.SubscriptionActive
	sub.CurrentPeriodStart = &now
	sub.CurrentPeriodEnd = &periodEnd
	sub.CancelAtPeriodEnd = false
	sub.CanceledAt = nil
	sub.EndedAt = nil
	sub.Provider = t.Provider
	sub.ProviderTransactionID = t.ProviderTransactionID
	if t.ProviderPreferenceID != "" {
		sub.ProviderPreferenceID = t.ProviderPreferenceID
	}
	sub.UpdatedAt = now

	if err := a.subs.Save(ctx, tx, sub); err != nil {
		if !errors.Is(err, domain.ErrAlreadyExists) {
			return nil, err
		}
		// Lost the one-record-per-account creation race: re-read the
		// winner's row and update it instead.
		winner, ferr := a.subs.FindByAccount(ctx, tx, t.AccountID)
		if ferr != nil {
			return nil, ferr
		}
		sub.ID = winner.ID
		sub.CreatedAt = winner.CreatedAt
		if err := a.subs.Save(ctx, tx, sub); err != nil {
			return nil, err
		}
	}

	snap := &model.EntitlementSnapshot{
		Status:                model.EntitlementPremium,
		Plan:                  plan.Code,
		SubscriptionStart:     &now,
		SubscriptionEnd:       &periodEnd,
		Provider:              t.Provider,
		ProviderTransactionID: t.ProviderTransactionID,
	}
	if err := a.accounts.UpdateEntitlement(ctx, tx, t.AccountID, snap); err != nil {
		return nil, err
	}

	a.log.Info().
		Str("account_id", t.AccountID).
		Str("transaction_id", t.ID).
		Str("plan", string(plan.Code)).
		Time("period_end", periodEnd).
		Msg("entitlement activated")
	return sub, nil
}
