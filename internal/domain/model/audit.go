package model

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Audit event types recorded by the billing flows.
const (
	AuditCheckoutCreated     = "checkout.created"
	AuditPaymentSettled      = "payment.settled"
	AuditPaymentFailed       = "payment.failed"
	AuditPaymentRefunded     = "payment.refunded"
	AuditWebhookUnmatched    = "webhook.unmatched"
	AuditWebhookRejected     = "webhook.rejected"
	AuditActivation          = "subscription.activated"
	AuditRecoveredActivation = "subscription.recovered_via_reconciliation"
	AuditCancellation        = "subscription.canceled"
	AuditTrialStarted        = "trial.started"
	AuditTrialNotified       = "trial.notified"
	AuditTrialExpired        = "trial.expired"
	AuditAccessAllowed       = "access.allowed"
	AuditAccessDenied        = "access.denied"
	AuditReceiptProcessed    = "receipt.processed"
)

// AuditEvent is one row of the append-only audit sink. IDs are ULIDs so
// the sink stays naturally ordered by creation time.
type AuditEvent struct {
	ID            string
	Timestamp     time.Time
	EventType     string
	AccountID     string
	TransactionID string
	Payload       map[string]any
}

func NewAuditEvent(eventType, accountID, transactionID string, payload map[string]any) *AuditEvent {
	now := time.Now()
	return &AuditEvent{
		ID:            ulid.Make().String(),
		Timestamp:     now,
		EventType:     eventType,
		AccountID:     accountID,
		TransactionID: transactionID,
		Payload:       payload,
	}
}
