package model

import (
	"time"

	"subscription-billing/internal/domain"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionSubscription TransactionType = "subscription"
	TransactionOneTime      TransactionType = "one-time"
	TransactionRefund       TransactionType = "refund"
	TransactionUpgrade      TransactionType = "upgrade"
	TransactionDowngrade    TransactionType = "downgrade"
)

type TransactionStatus string

const (
	TransactionPending    TransactionStatus = "pending"    // checkout created, awaiting payment
	TransactionProcessing TransactionStatus = "processing" // provider reports payment in flight
	TransactionCompleted  TransactionStatus = "completed"  // settled; entitlement must follow
	TransactionFailed     TransactionStatus = "failed"
	TransactionRefunded   TransactionStatus = "refunded"
	TransactionCanceled   TransactionStatus = "canceled"
)

// Transaction is one row of the payment ledger. Rows are append-oriented:
// status moves pending -> processing -> completed|failed, or
// completed -> refunded. ProviderTransactionID is filled on settlement and
// then acts as the idempotency key for webhook replays.
type Transaction struct {
	ID                    string // UUID
	AccountID             string
	Type                  TransactionType
	Amount                int64
	Currency              string
	Status                TransactionStatus
	Provider              string // "mercadopago" | "apple"
	ProviderTransactionID string
	ProviderPreferenceID  string // checkout intent id, set at creation
	RelatedSubscriptionID *string
	Plan                  PlanCode
	ProcessedAt           *time.Time
	ErrorInfo             *string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NewPendingTransaction records a checkout intent before the user is
// redirected to the provider.
func NewPendingTransaction(accountID string, plan *Plan, provider, preferenceID string) (*Transaction, error) {
	if accountID == "" || plan.IsZero() || provider == "" || preferenceID == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Transaction{
		ID:                   uuid.NewString(),
		AccountID:            accountID,
		Type:                 TransactionSubscription,
		Amount:               plan.PriceCLP,
		Currency:             "CLP",
		Status:               TransactionPending,
		Provider:             provider,
		ProviderPreferenceID: preferenceID,
		Plan:                 plan.Code,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// statusRank orders ledger states so that a stale duplicate webhook can
// never move a row backwards.
func statusRank(s TransactionStatus) int {
	switch s {
	case TransactionPending:
		return 0
	case TransactionProcessing:
		return 1
	case TransactionCompleted, TransactionFailed, TransactionCanceled:
		return 2
	case TransactionRefunded:
		return 3
	default:
		return 0
	}
}

// CanTransition reports whether moving to next is a forward transition.
// completed may still move to refunded; every other settled state is
// terminal.
func (t *Transaction) CanTransition(next TransactionStatus) bool {
	if t.Status == next {
		return false
	}
	if t.Status == TransactionCompleted {
		return next == TransactionRefunded
	}
	return statusRank(next) > statusRank(t.Status)
}
