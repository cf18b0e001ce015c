package adapter

import (
	"context"
)

// Webhook event kinds recognized by the orchestrator.
type EventKind string

const (
	EventPaymentSettled     EventKind = "payment"
	EventSubscriptionStatus EventKind = "subscription"
	EventPreapproval        EventKind = "preapproval"
	EventUnknown            EventKind = "unknown"
)

// WebhookEnvelope is the typed translation of a raw provider webhook.
// The adapter does shape translation only; business decisions belong to
// the orchestrator.
type WebhookEnvelope struct {
	Kind             EventKind
	ProviderObjectID string // payment id / subscription id at the provider
	PreferenceID     string // checkout intent id, when the payload carries it
	Status           string // provider status vocabulary, unmapped
	Raw              map[string]any
}

// CheckoutIntent is the result of creating a payment preference at the
// billing provider.
type CheckoutIntent struct {
	PreferenceID string
	RedirectURL  string
}

// ReturnURLs are the redirect targets handed to the provider at checkout.
type ReturnURLs struct {
	Success string
	Failure string
	Pending string
}

// BillingGateway is the hex port for the external billing provider.
type BillingGateway interface {
	Name() string

	// CreatePreference builds a payment intent priced in amount (CLP) and
	// returns the intent id plus the redirect URL for the payer.
	CreatePreference(ctx context.Context, amount int64, description, payerEmail string, urls ReturnURLs) (*CheckoutIntent, error)

	// PaymentStatus fetches the provider's current status for a payment id.
	// Used by reconciliation when the ledger row is still in flight.
	PaymentStatus(ctx context.Context, paymentID string) (status string, preferenceID string, err error)
}
