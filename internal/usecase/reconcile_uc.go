package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ ReconcileUseCase = (*reconcileUC)(nil)

// DivergentPayment is a settled subscription payment with no matching
// entitlement: the "paid but not entitled" case the scanner exists for.
type DivergentPayment struct {
	TransactionID       string         `json:"transaction_id"`
	AccountID           string         `json:"account_id"`
	Plan                model.PlanCode `json:"plan"`
	Amount              int64          `json:"amount"`
	CompletedAt         time.Time      `json:"completed_at"`
	DaysSinceCompletion int            `json:"days_since_completion"`
}

// RecoveryOutcome reports one repair attempt.
type RecoveryOutcome struct {
	TransactionID string `json:"transaction_id"`
	AccountID     string `json:"account_id"`
	AlreadyActive bool   `json:"already_active"`
	Activated     bool   `json:"activated"`
}

// BatchResult accumulates a full reconciliation pass.
type BatchResult struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Errors     []string `json:"errors,omitempty"`
}

type ReconcileUseCase interface {
	// FindDivergentPayments scans settled subscription payments inside the
	// window and returns those with no active-equivalent coverage. Rows
	// settled less than grace ago are skipped so the live webhook path gets
	// a chance to finish first.
	FindDivergentPayments(ctx context.Context, window time.Duration, grace time.Duration) ([]DivergentPayment, error)
	// ActivateFromTransaction repairs one divergence through the same
	// activation primitive the live path uses.
	ActivateFromTransaction(ctx context.Context, transactionID string) (*RecoveryOutcome, error)
	// ProcessAllDivergent runs the scanner and repairs every hit; one
	// item's failure never aborts the batch.
	ProcessAllDivergent(ctx context.Context, window time.Duration, grace time.Duration) (*BatchResult, error)
	// VerifyUserAccess recomputes entitlement validity from both persisted
	// representations.
	VerifyUserAccess(ctx context.Context, accountID string) (bool, error)
}

type reconcileUC struct {
	accounts     repository.AccountRepository
	subs         repository.SubscriptionRepository
	transactions repository.TransactionRepository
	tm           repository.TransactionManager
	activator    *Activator
	audit        *AuditEmitter
	log          *zerolog.Logger
}

func NewReconcileUseCase(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	transactions repository.TransactionRepository,
	tm repository.TransactionManager,
	activator *Activator,
	audit *AuditEmitter,
	logger *zerolog.Logger,
) *reconcileUC {
	rcLog := logger.With().Str("component", "ReconcileUseCase").Logger()
	return &reconcileUC{
		accounts:     accounts,
		subs:         subs,
		transactions: transactions,
		tm:           tm,
		activator:    activator,
		audit:        audit,
		log:          &rcLog,
	}
}

const scanBatchLimit = 500

func (u *reconcileUC) FindDivergentPayments(ctx context.Context, window time.Duration, grace time.Duration) ([]DivergentPayment, error) {
	now := time.Now()
	since := now.Add(-window)
	rows, err := u.transactions.ListCompletedSubscriptionsSince(ctx, nil, since, scanBatchLimit)
	if err != nil {
		return nil, err
	}

	var divergent []DivergentPayment
	for _, t := range rows {
		completedAt := t.CreatedAt
		if t.ProcessedAt != nil {
			completedAt = *t.ProcessedAt
		}
		if now.Sub(completedAt) < grace {
			continue
		}
		covered, err := u.hasCoverage(ctx, t.AccountID, now)
		if err != nil {
			u.log.Error().Err(err).
				Str("transaction_id", t.ID).
				Str("account_id", t.AccountID).
				Msg("coverage check failed, skipping row")
			continue
		}
		if covered {
			continue
		}
		divergent = append(divergent, DivergentPayment{
			TransactionID:       t.ID,
			AccountID:           t.AccountID,
			Plan:                t.Plan,
			Amount:              t.Amount,
			CompletedAt:         completedAt,
			DaysSinceCompletion: int(now.Sub(completedAt).Hours() / 24),
		})
	}

	metrics.AddDivergentFound(len(divergent))
	if len(divergent) > 0 {
		u.log.Warn().Int("count", len(divergent)).Msg("divergent payments found")
	}
	return divergent, nil
}

// hasCoverage checks both representations for active-equivalent access.
func (u *reconcileUC) hasCoverage(ctx context.Context, accountID string, now time.Time) (bool, error) {
	sub, err := u.subs.FindByAccount(ctx, nil, accountID)
	switch {
	case err == nil:
		if sub.IsActive(now) {
			return true, nil
		}
	case !errors.Is(err, domain.ErrNotFound):
		return false, err
	}

	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return false, err
	}
	snap := &acct.Entitlement
	return snap.HasPremium(now) || snap.HasTrial(now), nil
}

func (u *reconcileUC) ActivateFromTransaction(ctx context.Context, transactionID string) (*RecoveryOutcome, error) {
	t, err := u.transactions.FindByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	if t.Status != model.TransactionCompleted || t.Type != model.TransactionSubscription {
		return nil, fmt.Errorf("%w: transaction %s is %s/%s, not a settled subscription",
			domain.ErrInvalidArgument, t.ID, t.Status, t.Type)
	}

	now := time.Now()
	covered, err := u.hasCoverage(ctx, t.AccountID, now)
	if err != nil {
		return nil, err
	}
	if covered {
		// Entitlement is already valid; activating again would extend the
		// period a second time for the same payment.
		return &RecoveryOutcome{TransactionID: t.ID, AccountID: t.AccountID, AlreadyActive: true}, nil
	}

	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		_, err := u.activator.ActivateFromTransaction(ctx, tx, t)
		return err
	})
	if err != nil {
		metrics.IncDivergentRepaired("failed")
		return nil, err
	}

	metrics.IncDivergentRepaired("success")
	metrics.IncActivation("reconciliation")
	u.audit.Emit(ctx, model.AuditRecoveredActivation, t.AccountID, t.ID, map[string]any{
		"plan":           string(t.Plan),
		"amount":         t.Amount,
		"provider_tx_id": t.ProviderTransactionID,
	})
	u.log.Info().
		Str("transaction_id", t.ID).
		Str("account_id", t.AccountID).
		Msg("entitlement recovered via reconciliation")
	return &RecoveryOutcome{TransactionID: t.ID, AccountID: t.AccountID, Activated: true}, nil
}

func (u *reconcileUC) ProcessAllDivergent(ctx context.Context, window time.Duration, grace time.Duration) (*BatchResult, error) {
	metrics.IncReconcileRun()
	divergent, err := u.FindDivergentPayments(ctx, window, grace)
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Total: len(divergent)}
	for _, d := range divergent {
		if _, err := u.ActivateFromTransaction(ctx, d.TransactionID); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", d.TransactionID, err))
			u.log.Error().Err(err).Str("transaction_id", d.TransactionID).Msg("recovery failed")
			continue
		}
		res.Successful++
	}

	u.log.Info().
		Int("total", res.Total).
		Int("successful", res.Successful).
		Int("failed", res.Failed).
		Msg("reconciliation pass finished")
	return res, nil
}

func (u *reconcileUC) VerifyUserAccess(ctx context.Context, accountID string) (bool, error) {
	return u.hasCoverage(ctx, accountID, time.Now())
}
