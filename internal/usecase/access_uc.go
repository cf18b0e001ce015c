package usecase

import (
	"context"
	"errors"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"

	"github.com/rs/zerolog"
)

// Compile-time check
var _ AccessUseCase = (*accessUC)(nil)

// AccessDecision is the outcome of one entitlement check. On denial the
// accompanying error is one of the domain sentinels so callers can branch
// with errors.Is; the decision itself carries the machine-readable detail.
type AccessDecision struct {
	Allowed       bool   `json:"allowed"`
	Reason        string `json:"reason"`
	Status        string `json:"status"`
	TrialExpired  bool   `json:"trial_expired"`
	DaysRemaining int    `json:"days_remaining"`
}

type AccessUseCase interface {
	// RequireActiveSubscription resolves entitlement, subscription record
	// first with the snapshot as fallback, and allows active/premium access
	// plus trial access when allowTrial is set.
	RequireActiveSubscription(ctx context.Context, accountID string, allowTrial bool) (*AccessDecision, error)
	// RequirePremium rejects trial-only access.
	RequirePremium(ctx context.Context, accountID string) (*AccessDecision, error)
}

type accessUC struct {
	accounts repository.AccountRepository
	subs     repository.SubscriptionRepository
	trial    TrialUseCase
	audit    *AuditEmitter
	log      *zerolog.Logger
}

func NewAccessUseCase(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	trial TrialUseCase,
	audit *AuditEmitter,
	logger *zerolog.Logger,
) *accessUC {
	acLog := logger.With().Str("component", "AccessUseCase").Logger()
	return &accessUC{accounts: accounts, subs: subs, trial: trial, audit: audit, log: &acLog}
}

func (u *accessUC) RequireActiveSubscription(ctx context.Context, accountID string, allowTrial bool) (*AccessDecision, error) {
	started := time.Now()
	if accountID == "" {
		return nil, domain.ErrInvalidArgument
	}

	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}
	sub, err := u.subs.FindByAccount(ctx, nil, acct.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	now := time.Now()
	st := resolveEntitlement(acct, sub)
	decision := &AccessDecision{
		Status:        st.Status,
		DaysRemaining: st.daysRemaining(now),
	}

	switch {
	case st.hasPaidAccess(now):
		decision.Allowed = true
		decision.Reason = ReasonGranted
	case st.inTrial(now):
		if allowTrial {
			decision.Allowed = true
			decision.Reason = ReasonGranted
		} else {
			decision.Reason = ReasonTrialNotAllowed
		}
	case st.trialExpired(now):
		decision.Reason = ReasonTrialExpired
		decision.TrialExpired = true
		// Self-healing under read load: the record said trialing but the
		// window is over, downgrade it right here.
		if err := u.trial.ExpireTrial(ctx, acct.ID); err != nil {
			u.log.Error().Err(err).Str("account_id", acct.ID).Msg("inline trial expiry failed")
		} else {
			decision.Status = string(model.SubscriptionExpired)
		}
	case st.Status == string(model.EntitlementFree), st.Status == "":
		decision.Reason = ReasonNoSubscription
	default:
		decision.Reason = ReasonExpired
	}

	u.record(ctx, acct.ID, allowTrial, decision, time.Since(started))
	if decision.Allowed {
		return decision, nil
	}
	return decision, denialError(decision.Reason)
}

func (u *accessUC) RequirePremium(ctx context.Context, accountID string) (*AccessDecision, error) {
	return u.RequireActiveSubscription(ctx, accountID, false)
}

func (u *accessUC) record(ctx context.Context, accountID string, allowTrial bool, d *AccessDecision, latency time.Duration) {
	outcome := "deny"
	eventType := model.AuditAccessDenied
	if d.Allowed {
		outcome = "allow"
		eventType = model.AuditAccessAllowed
	}
	metrics.IncAccessDecision(outcome, d.Reason)
	metrics.ObserveAccessLatency(latency)
	u.audit.Emit(ctx, eventType, accountID, "", map[string]any{
		"reason":      d.Reason,
		"status":      d.Status,
		"allow_trial": allowTrial,
		"latency_ms":  latency.Milliseconds(),
	})
}

func denialError(reason string) error {
	switch reason {
	case ReasonTrialExpired:
		return domain.ErrTrialExpired
	case ReasonExpired:
		return domain.ErrSubscriptionExpired
	default:
		return domain.ErrNoActiveSubscription
	}
}
