package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ SubscriptionUseCase = (*subscriptionUC)(nil)

// StatusView is the normalized one-shape answer to "what does this account
// have", merged from the subscription record (preferred) and the snapshot.
type StatusView struct {
	AccountID          string         `json:"account_id"`
	Status             string         `json:"status"`
	Plan               model.PlanCode `json:"plan,omitempty"`
	CurrentPeriodStart *time.Time     `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time     `json:"current_period_end,omitempty"`
	TrialEnd           *time.Time     `json:"trial_end,omitempty"`
	CancelAtPeriodEnd  bool           `json:"cancel_at_period_end"`
	DaysRemaining      int            `json:"days_remaining"`
	Provider           string         `json:"provider,omitempty"`
	Source             string         `json:"source"` // "subscription" | "snapshot"
}

type SubscriptionUseCase interface {
	// CreateCheckout builds a provider payment intent for the plan, records
	// a pending ledger row keyed by the intent id and returns the redirect
	// URL for the payer.
	CreateCheckout(ctx context.Context, accountID string, plan model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error)
	// HandleProviderEvent applies one webhook envelope. It is safe to call
	// with duplicates and out-of-order deliveries; unmatched events are
	// audited and acknowledged, never failed.
	HandleProviderEvent(ctx context.Context, env *adapter.WebhookEnvelope) error
	// CancelSubscription cancels now (immediate) or at period end.
	CancelSubscription(ctx context.Context, accountID string, immediate bool) error
	// GetStatus returns the merged entitlement view.
	GetStatus(ctx context.Context, accountID string) (*StatusView, error)
	// GetStatusByEmail is the operator-side lookup for support tooling.
	GetStatusByEmail(ctx context.Context, email string) (*StatusView, error)
	// StartTrial grants a trial of trialDays for the plan, once per account.
	StartTrial(ctx context.Context, accountID string, plan model.PlanCode, trialDays int) (*model.Subscription, error)
}

type subscriptionUC struct {
	accounts     repository.AccountRepository
	subs         repository.SubscriptionRepository
	transactions repository.TransactionRepository
	tm           repository.TransactionManager
	gateway      adapter.BillingGateway // nil when no provider is configured
	activator    *Activator
	audit        *AuditEmitter
	log          *zerolog.Logger
}

func NewSubscriptionUseCase(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	transactions repository.TransactionRepository,
	tm repository.TransactionManager,
	gateway adapter.BillingGateway,
	activator *Activator,
	audit *AuditEmitter,
	logger *zerolog.Logger,
) *subscriptionUC {
	subLog := logger.With().Str("component", "SubscriptionUseCase").Logger()
	return &subscriptionUC{
		accounts:     accounts,
		subs:         subs,
		transactions: transactions,
		tm:           tm,
		gateway:      gateway,
		activator:    activator,
		audit:        audit,
		log:          &subLog,
	}
}

func (u *subscriptionUC) CreateCheckout(ctx context.Context, accountID string, planCode model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error) {
	if u.gateway == nil {
		return nil, "", fmt.Errorf("%w: billing gateway not configured", domain.ErrConfiguration)
	}
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, "", err
	}
	plan, err := model.PlanByCode(planCode)
	if err != nil {
		return nil, "", err
	}

	description := fmt.Sprintf("Subscription %s", plan.Code)
	intent, err := u.gateway.CreatePreference(ctx, plan.PriceCLP, description, acct.Email, urls)
	if err != nil {
		return nil, "", err
	}

	t, err := model.NewPendingTransaction(acct.ID, plan, u.gateway.Name(), intent.PreferenceID)
	if err != nil {
		return nil, "", err
	}
	if err := u.transactions.Save(ctx, nil, t); err != nil {
		return nil, "", err
	}

	metrics.IncTransaction(t.Provider, string(t.Status))
	u.audit.Emit(ctx, model.AuditCheckoutCreated, acct.ID, t.ID, map[string]any{
		"plan":          string(plan.Code),
		"amount":        plan.PriceCLP,
		"currency":      t.Currency,
		"preference_id": intent.PreferenceID,
		"provider":      t.Provider,
	})
	u.log.Info().
		Str("account_id", acct.ID).
		Str("transaction_id", t.ID).
		Str("preference_id", intent.PreferenceID).
		Str("plan", string(plan.Code)).
		Msg("checkout created")
	return t, intent.RedirectURL, nil
}

// mapProviderStatus translates the provider payment vocabulary into ledger
// states. Unrecognized values report ok=false and are acknowledged without
// a transition.
func mapProviderStatus(s string) (model.TransactionStatus, bool) {
	switch s {
	case "approved":
		return model.TransactionCompleted, true
	case "pending", "in_process", "authorized":
		return model.TransactionProcessing, true
	case "rejected":
		return model.TransactionFailed, true
	case "cancelled":
		return model.TransactionCanceled, true
	case "refunded", "charged_back":
		return model.TransactionRefunded, true
	default:
		return "", false
	}
}

func (u *subscriptionUC) HandleProviderEvent(ctx context.Context, env *adapter.WebhookEnvelope) error {
	if env == nil {
		return nil
	}
	switch env.Kind {
	case adapter.EventPaymentSettled:
		return u.handlePaymentEvent(ctx, env)
	case adapter.EventSubscriptionStatus, adapter.EventPreapproval:
		return u.handleSubscriptionEvent(ctx, env)
	default:
		metrics.IncWebhookEvent(string(env.Kind), "ignored")
		u.log.Debug().Str("kind", string(env.Kind)).Str("object_id", env.ProviderObjectID).Msg("webhook kind ignored")
		return nil
	}
}

func (u *subscriptionUC) handlePaymentEvent(ctx context.Context, env *adapter.WebhookEnvelope) error {
	provider := "mercadopago"
	if u.gateway != nil {
		provider = u.gateway.Name()
	}

	status := env.Status
	preferenceID := env.PreferenceID
	if status == "" && u.gateway != nil {
		// Notification-only webhook: the payload carries just the payment
		// id, the current status has to be fetched back from the provider.
		s, pref, err := u.gateway.PaymentStatus(ctx, env.ProviderObjectID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return u.ackUnmatched(ctx, env, "payment not found at provider")
			}
			return err // retryable; provider will redeliver
		}
		status = s
		if preferenceID == "" {
			preferenceID = pref
		}
	}

	t, err := u.transactions.FindByProviderTransactionID(ctx, nil, provider, env.ProviderObjectID)
	if errors.Is(err, domain.ErrNotFound) && preferenceID != "" {
		t, err = u.transactions.FindByPreferenceID(ctx, nil, provider, preferenceID)
	}
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return u.ackUnmatched(ctx, env, "no ledger row for event")
	case err != nil:
		return err
	}

	next, ok := mapProviderStatus(status)
	if !ok {
		metrics.IncWebhookEvent(string(env.Kind), "unmapped_status")
		u.log.Warn().Str("status", status).Str("object_id", env.ProviderObjectID).Msg("unmapped provider status")
		return nil
	}
	if !t.CanTransition(next) {
		// Duplicate or stale delivery; already at or past this state.
		metrics.IncWebhookEvent(string(env.Kind), "duplicate")
		u.log.Debug().
			Str("transaction_id", t.ID).
			Str("current", string(t.Status)).
			Str("incoming", string(next)).
			Msg("webhook ignored, no forward transition")
		return nil
	}

	now := time.Now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		var providerTxID *string
		var processedAt *time.Time
		if env.ProviderObjectID != "" {
			providerTxID = &env.ProviderObjectID
		}
		switch next {
		case model.TransactionCompleted, model.TransactionFailed, model.TransactionRefunded, model.TransactionCanceled:
			processedAt = &now
		}
		if err := u.transactions.UpdateStatus(ctx, tx, t.ID, next, providerTxID, processedAt, nil); err != nil {
			return err
		}
		t.Status = next
		if providerTxID != nil {
			t.ProviderTransactionID = *providerTxID
		}
		t.ProcessedAt = processedAt

		switch next {
		case model.TransactionCompleted:
			if _, err := u.activator.ActivateFromTransaction(ctx, tx, t); err != nil {
				return err
			}
		case model.TransactionRefunded:
			if err := u.revokeEntitlement(ctx, tx, t.AccountID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.IncWebhookEvent(string(env.Kind), "error")
		return err
	}

	metrics.IncTransaction(t.Provider, string(next))
	metrics.IncWebhookEvent(string(env.Kind), "applied")
	switch next {
	case model.TransactionCompleted:
		metrics.AddRevenue(t.Currency, t.Amount)
		metrics.IncActivation("webhook")
		u.audit.Emit(ctx, model.AuditPaymentSettled, t.AccountID, t.ID, map[string]any{
			"provider_tx_id": t.ProviderTransactionID,
			"plan":           string(t.Plan),
			"amount":         t.Amount,
		})
		u.audit.Emit(ctx, model.AuditActivation, t.AccountID, t.ID, map[string]any{
			"plan":   string(t.Plan),
			"source": "webhook",
		})
	case model.TransactionFailed:
		u.audit.Emit(ctx, model.AuditPaymentFailed, t.AccountID, t.ID, map[string]any{
			"provider_status": status,
		})
	case model.TransactionRefunded:
		u.audit.Emit(ctx, model.AuditPaymentRefunded, t.AccountID, t.ID, map[string]any{
			"provider_tx_id": t.ProviderTransactionID,
			"amount":         t.Amount,
		})
	}
	return nil
}

// handleSubscriptionEvent applies provider-side subscription (preapproval)
// status changes. These never extend a period; settlement does that.
func (u *subscriptionUC) handleSubscriptionEvent(ctx context.Context, env *adapter.WebhookEnvelope) error {
	provider := "mercadopago"
	if u.gateway != nil {
		provider = u.gateway.Name()
	}
	sub, err := u.subs.FindByProviderSubscriptionID(ctx, nil, provider, env.ProviderObjectID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return u.ackUnmatched(ctx, env, "no subscription for provider id")
	case err != nil:
		return err
	}

	var next model.SubscriptionStatus
	switch env.Status {
	case "authorized":
		next = model.SubscriptionActive
	case "paused":
		next = model.SubscriptionPastDue
	case "cancelled":
		next = model.SubscriptionCanceled
	case "pending":
		next = model.SubscriptionIncomplete
	default:
		metrics.IncWebhookEvent(string(env.Kind), "unmapped_status")
		return nil
	}
	if sub.Status == next {
		metrics.IncWebhookEvent(string(env.Kind), "duplicate")
		return nil
	}
	// authorized must not resurrect a record a settlement has not paid for.
	if next == model.SubscriptionActive && sub.CurrentPeriodEnd == nil {
		metrics.IncWebhookEvent(string(env.Kind), "ignored")
		return nil
	}

	now := time.Now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub.Status = next
		sub.UpdatedAt = now
		if next == model.SubscriptionCanceled {
			sub.CanceledAt = &now
			sub.EndedAt = &now
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		if next == model.SubscriptionCanceled {
			return u.revokeEntitlement(ctx, tx, sub.AccountID, now)
		}
		return nil
	})
	if err != nil {
		metrics.IncWebhookEvent(string(env.Kind), "error")
		return err
	}
	metrics.IncWebhookEvent(string(env.Kind), "applied")
	if next == model.SubscriptionCanceled {
		u.audit.Emit(ctx, model.AuditCancellation, sub.AccountID, "", map[string]any{
			"source":          "provider",
			"provider_sub_id": env.ProviderObjectID,
		})
	}
	return nil
}

// revokeEntitlement downgrades the snapshot after a refund or provider-side
// cancellation, closing the fast read path at the same moment.
func (u *subscriptionUC) revokeEntitlement(ctx context.Context, tx repository.Tx, accountID string, now time.Time) error {
	acct, err := u.accounts.FindByID(ctx, tx, accountID)
	if err != nil {
		return err
	}
	snap := acct.Entitlement
	snap.Status = model.EntitlementExpired
	snap.SubscriptionEnd = &now
	return u.accounts.UpdateEntitlement(ctx, tx, accountID, &snap)
}

func (u *subscriptionUC) ackUnmatched(ctx context.Context, env *adapter.WebhookEnvelope, reason string) error {
	metrics.IncWebhookEvent(string(env.Kind), "unmatched")
	u.audit.Emit(ctx, model.AuditWebhookUnmatched, "", "", map[string]any{
		"kind":      string(env.Kind),
		"object_id": env.ProviderObjectID,
		"status":    env.Status,
		"reason":    reason,
	})
	u.log.Warn().
		Str("kind", string(env.Kind)).
		Str("object_id", env.ProviderObjectID).
		Str("reason", reason).
		Msg("unmatched webhook event acknowledged")
	return nil
}

func (u *subscriptionUC) CancelSubscription(ctx context.Context, accountID string, immediate bool) error {
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return err
	}

	now := time.Now()
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByAccount(ctx, tx, acct.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}

		if sub != nil {
			if immediate {
				sub.Status = model.SubscriptionCanceled
				sub.CancelAtPeriodEnd = false
				sub.CanceledAt = &now
				sub.EndedAt = &now
			} else {
				sub.CancelAtPeriodEnd = true
				sub.CanceledAt = &now
			}
			sub.UpdatedAt = now
			if err := u.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
		}

		if immediate {
			return u.revokeEntitlement(ctx, tx, acct.ID, now)
		}
		return nil
	})
	if err != nil {
		return err
	}

	u.audit.Emit(ctx, model.AuditCancellation, acct.ID, "", map[string]any{
		"immediate": immediate,
	})
	u.log.Info().Str("account_id", acct.ID).Bool("immediate", immediate).Msg("subscription canceled")
	return nil
}

func (u *subscriptionUC) GetStatus(ctx context.Context, accountID string) (*StatusView, error) {
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	sub, err := u.subs.FindByAccount(ctx, nil, acct.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	st := resolveEntitlement(acct, sub)
	source := "subscription"
	if st.FromSnapshot {
		source = "snapshot"
	}
	return &StatusView{
		AccountID:          acct.ID,
		Status:             st.Status,
		Plan:               st.Plan,
		CurrentPeriodStart: st.PeriodStart,
		CurrentPeriodEnd:   st.PeriodEnd,
		TrialEnd:           st.TrialEnd,
		CancelAtPeriodEnd:  st.CancelAtEnd,
		DaysRemaining:      st.daysRemaining(time.Now()),
		Provider:           st.Provider,
		Source:             source,
	}, nil
}

func (u *subscriptionUC) GetStatusByEmail(ctx context.Context, email string) (*StatusView, error) {
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	acct, err := u.accounts.FindByEmail(ctx, nil, email)
	if err != nil {
		return nil, err
	}
	return u.GetStatus(ctx, acct.ID)
}

func (u *subscriptionUC) StartTrial(ctx context.Context, accountID string, planCode model.PlanCode, trialDays int) (*model.Subscription, error) {
	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	plan, err := model.PlanByCode(planCode)
	if err != nil {
		return nil, err
	}
	// One trial per account: any existing record, whatever its state,
	// means the account has been through the lifecycle before.
	if _, err := u.subs.FindByAccount(ctx, nil, acct.ID); err == nil {
		return nil, domain.ErrAlreadyExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if acct.Entitlement.Status != model.EntitlementFree {
		return nil, domain.ErrAlreadyExists
	}

	sub, err := model.NewTrialSubscription(uuid.NewString(), acct.ID, plan, trialDays)
	if err != nil {
		return nil, err
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			return err
		}
		snap := &model.EntitlementSnapshot{
			Status:     model.EntitlementTrial,
			Plan:       plan.Code,
			TrialStart: sub.TrialStart,
			TrialEnd:   sub.TrialEnd,
		}
		return u.accounts.UpdateEntitlement(ctx, tx, acct.ID, snap)
	})
	if err != nil {
		return nil, err
	}

	u.audit.Emit(ctx, model.AuditTrialStarted, acct.ID, "", map[string]any{
		"plan":       string(plan.Code),
		"trial_days": trialDays,
		"trial_end":  sub.TrialEnd,
	})
	u.log.Info().Str("account_id", acct.ID).Int("trial_days", trialDays).Msg("trial started")
	return sub, nil
}
