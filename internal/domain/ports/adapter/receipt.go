package adapter

import (
	"context"
	"time"
)

// Apple verifyReceipt status codes the service reacts to. 21007 means a
// sandbox receipt was submitted to production and triggers the verifier's
// single built-in retry against the sandbox endpoint.
const (
	ReceiptStatusOK                  = 0
	ReceiptStatusSandboxInProduction = 21007
)

// ReceiptTransaction is one embedded transaction of a verified receipt.
type ReceiptTransaction struct {
	ProductID             string
	TransactionID         string
	OriginalTransactionID string
	PurchaseAt            time.Time
	ExpiresAt             *time.Time // nil when the provider omits expiry metadata
}

// ReceiptVerification is the decoded outcome of a verifyReceipt call.
type ReceiptVerification struct {
	Status       int
	Message      string // mapped meaning of a non-zero status
	Environment  string // "Production" | "Sandbox"
	Transactions []ReceiptTransaction
}

// ReceiptVerifier is the hex port for the mobile receipt-verification
// service.
type ReceiptVerifier interface {
	// VerifyReceipt submits a base64 receipt for verification. When
	// sandboxHint is set the sandbox endpoint is tried first.
	VerifyReceipt(ctx context.Context, base64Receipt string, sandboxHint bool) (*ReceiptVerification, error)
}
