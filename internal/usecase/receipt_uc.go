package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
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
var _ ReceiptUseCase = (*receiptUC)(nil)

// ReceiptResult summarizes one processed receipt.
type ReceiptResult struct {
	TransactionID         string         `json:"transaction_id"`
	ProviderTransactionID string         `json:"provider_transaction_id"`
	Plan                  model.PlanCode `json:"plan"`
	ExpiresAt             time.Time      `json:"expires_at"`
	Active                bool           `json:"active"`
}

type ReceiptUseCase interface {
	// ProcessAppleReceipt verifies a base64 receipt against Apple and
	// applies the entitlement it proves.
	ProcessAppleReceipt(ctx context.Context, accountID, base64Receipt, productID string, sandboxHint bool) (*ReceiptResult, error)
	// ProcessSubscriptionReceipt applies an already-verified receipt.
	ProcessSubscriptionReceipt(ctx context.Context, accountID string, verification *adapter.ReceiptVerification, productID, externalTransactionID string) (*ReceiptResult, error)
}

type receiptUC struct {
	accounts     repository.AccountRepository
	subs         repository.SubscriptionRepository
	transactions repository.TransactionRepository
	tm           repository.TransactionManager
	verifier     adapter.ReceiptVerifier
	audit        *AuditEmitter
	log          *zerolog.Logger
}

func NewReceiptUseCase(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	transactions repository.TransactionRepository,
	tm repository.TransactionManager,
	verifier adapter.ReceiptVerifier,
	audit *AuditEmitter,
	logger *zerolog.Logger,
) *receiptUC {
	rcLog := logger.With().Str("component", "ReceiptUseCase").Logger()
	return &receiptUC{
		accounts:     accounts,
		subs:         subs,
		transactions: transactions,
		tm:           tm,
		verifier:     verifier,
		audit:        audit,
		log:          &rcLog,
	}
}

func (u *receiptUC) ProcessAppleReceipt(ctx context.Context, accountID, base64Receipt, productID string, sandboxHint bool) (*ReceiptResult, error) {
	if u.verifier == nil {
		return nil, fmt.Errorf("%w: receipt verifier not configured", domain.ErrConfiguration)
	}
	verification, err := u.verifier.VerifyReceipt(ctx, base64Receipt, sandboxHint)
	if err != nil {
		return nil, err
	}
	return u.ProcessSubscriptionReceipt(ctx, accountID, verification, productID, "")
}

// pickLatest selects the newest purchase for productID. Ties on the
// purchase timestamp break on transaction id so repeated calls pick the
// same row.
func pickLatest(txs []adapter.ReceiptTransaction, productID string) (adapter.ReceiptTransaction, bool) {
	matching := make([]adapter.ReceiptTransaction, 0, len(txs))
	for _, t := range txs {
		if t.ProductID == productID {
			matching = append(matching, t)
		}
	}
	if len(matching) == 0 {
		return adapter.ReceiptTransaction{}, false
	}
	sort.Slice(matching, func(i, j int) bool {
		if !matching[i].PurchaseAt.Equal(matching[j].PurchaseAt) {
			return matching[i].PurchaseAt.After(matching[j].PurchaseAt)
		}
		return matching[i].TransactionID > matching[j].TransactionID
	})
	return matching[0], true
}

func (u *receiptUC) ProcessSubscriptionReceipt(ctx context.Context, accountID string, verification *adapter.ReceiptVerification, productID, externalTransactionID string) (*ReceiptResult, error) {
	if verification == nil || accountID == "" || productID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if verification.Status != adapter.ReceiptStatusOK {
		return nil, fmt.Errorf("%w: status %d (%s)", domain.ErrReceiptInvalid, verification.Status, verification.Message)
	}

	acct, err := u.accounts.FindByID(ctx, nil, accountID)
	if err != nil {
		return nil, err
	}

	receiptTx, ok := pickLatest(verification.Transactions, productID)
	if !ok {
		return nil, fmt.Errorf("%w: receipt has no transaction for product %q", domain.ErrReceiptInvalid, productID)
	}
	plan, err := model.PlanByProductID(productID)
	if err != nil {
		return nil, err
	}

	expiry := receiptTx.PurchaseAt.AddDate(0, 0, plan.DurationDays)
	if receiptTx.ExpiresAt != nil {
		expiry = *receiptTx.ExpiresAt
	} else {
		// Apple normally sends expires_date_ms for auto-renewables; its
		// absence means the product metadata is incomplete for this plan.
		u.log.Warn().
			Str("product_id", productID).
			Str("plan", string(plan.Code)).
			Msg("receipt missing expiry, falling back to purchase + plan duration")
	}

	providerTxID := receiptTx.TransactionID
	if externalTransactionID != "" {
		providerTxID = externalTransactionID
	}

	now := time.Now()
	active := expiry.After(now)

	var ledger *model.Transaction
	err = u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		// A resubmitted receipt reuses its ledger row instead of minting a
		// duplicate settlement.
		existing, err := u.transactions.FindByProviderTransactionID(ctx, tx, "apple", providerTxID)
		switch {
		case err == nil:
			ledger = existing
		case errors.Is(err, domain.ErrNotFound):
			ledger = &model.Transaction{
				ID:                    uuid.NewString(),
				AccountID:             acct.ID,
				Type:                  model.TransactionSubscription,
				Amount:                plan.PriceCLP,
				Currency:              "CLP",
				Status:                model.TransactionCompleted,
				Provider:              "apple",
				ProviderTransactionID: providerTxID,
				Plan:                  plan.Code,
				ProcessedAt:           &now,
				CreatedAt:             now,
				UpdatedAt:             now,
			}
			if err := u.transactions.Save(ctx, tx, ledger); err != nil {
				return err
			}
		default:
			return err
		}

		sub, err := u.subs.FindByAccount(ctx, tx, acct.ID)
		switch {
		case err == nil:
		case errors.Is(err, domain.ErrNotFound):
			sub = &model.Subscription{
				ID:        uuid.NewString(),
				AccountID: acct.ID,
				CreatedAt: now,
			}
		default:
			return err
		}

		sub.Plan = plan.Code
		sub.Provider = "apple"
		sub.ProviderTransactionID = providerTxID
		sub.CurrentPeriodStart = &receiptTx.PurchaseAt
		sub.CurrentPeriodEnd = &expiry
		sub.CancelAtPeriodEnd = false
		sub.CanceledAt = nil
		sub.UpdatedAt = now
		if active {
			sub.Status = model.SubscriptionActive
			sub.EndedAt = nil
		} else {
			sub.Status = model.SubscriptionExpired
		}
		if err := u.subs.Save(ctx, tx, sub); err != nil {
			if !errors.Is(err, domain.ErrAlreadyExists) {
				return err
			}
			winner, ferr := u.subs.FindByAccount(ctx, tx, acct.ID)
			if ferr != nil {
				return ferr
			}
			sub.ID = winner.ID
			sub.CreatedAt = winner.CreatedAt
			if err := u.subs.Save(ctx, tx, sub); err != nil {
				return err
			}
		}

		snap := &model.EntitlementSnapshot{
			Plan:                  plan.Code,
			SubscriptionStart:     &receiptTx.PurchaseAt,
			SubscriptionEnd:       &expiry,
			Provider:              "apple",
			ProviderTransactionID: providerTxID,
		}
		if active {
			snap.Status = model.EntitlementPremium
		} else {
			snap.Status = model.EntitlementExpired
		}
		return u.accounts.UpdateEntitlement(ctx, tx, acct.ID, snap)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncTransaction("apple", string(model.TransactionCompleted))
	if active {
		metrics.AddRevenue("CLP", plan.PriceCLP)
		metrics.IncActivation("receipt")
	}
	u.audit.Emit(ctx, model.AuditReceiptProcessed, acct.ID, ledger.ID, map[string]any{
		"product_id":     productID,
		"plan":           string(plan.Code),
		"provider_tx_id": providerTxID,
		"environment":    verification.Environment,
		"expires_at":     expiry,
		"active":         active,
	})
	u.log.Info().
		Str("account_id", acct.ID).
		Str("product_id", productID).
		Time("expires_at", expiry).
		Bool("active", active).
		Msg("receipt processed")

	return &ReceiptResult{
		TransactionID:         ledger.ID,
		ProviderTransactionID: providerTxID,
		Plan:                  plan.Code,
		ExpiresAt:             expiry,
		Active:                active,
	}, nil
}
