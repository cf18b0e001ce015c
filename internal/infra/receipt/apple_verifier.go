package receipt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
)

const (
	productionVerifyURL = "https://buy.itunes.apple.com/verifyReceipt"
	sandboxVerifyURL    = "https://sandbox.itunes.apple.com/verifyReceipt"
)

// appleStatusMessages maps non-zero verifyReceipt status codes to their
// documented meaning. Codes not in the table surface as a generic
// rejection.
var appleStatusMessages = map[int]string{
	21000: "the request was not a valid JSON object",
	21002: "the receipt data was malformed or missing",
	21003: "the receipt could not be authenticated",
	21004: "the shared secret does not match",
	21005: "the receipt server is temporarily unavailable",
	21006: "the receipt is valid but the subscription has expired",
	21007: "sandbox receipt sent to the production environment",
	21008: "production receipt sent to the sandbox environment",
	21010: "the account cannot be found or has been deleted",
}

// StatusMessage returns the documented meaning of a verifyReceipt status.
func StatusMessage(status int) string {
	if msg, ok := appleStatusMessages[status]; ok {
		return msg
	}
	return fmt.Sprintf("receipt verification failed with status %d", status)
}

var _ adapter.ReceiptVerifier = (*AppleVerifier)(nil)

// AppleVerifier implements adapter.ReceiptVerifier against the Apple
// verifyReceipt endpoint.
type AppleVerifier struct {
	sharedSecret  string
	client        *http.Client
	productionURL string
	sandboxURL    string
}

func NewAppleVerifier(sharedSecret string, timeout time.Duration) *AppleVerifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AppleVerifier{
		sharedSecret:  sharedSecret,
		client:        &http.Client{Timeout: timeout},
		productionURL: productionVerifyURL,
		sandboxURL:    sandboxVerifyURL,
	}
}

type verifyRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions"`
}

type verifyResponse struct {
	Status            int    `json:"status"`
	Environment       string `json:"environment"`
	LatestReceiptInfo []struct {
		ProductID             string `json:"product_id"`
		TransactionID         string `json:"transaction_id"`
		OriginalTransactionID string `json:"original_transaction_id"`
		PurchaseDateMS        string `json:"purchase_date_ms"`
		ExpiresDateMS         string `json:"expires_date_ms"`
	} `json:"latest_receipt_info"`
}

// VerifyReceipt submits a base64 receipt for verification. When the
// production endpoint answers 21007 (sandbox receipt submitted to
// production) the call is retried once against the sandbox endpoint; this
// is the verifier's only built-in retry.
func (v *AppleVerifier) VerifyReceipt(ctx context.Context, base64Receipt string, sandboxHint bool) (*adapter.ReceiptVerification, error) {
	if base64Receipt == "" {
		return nil, domain.ErrInvalidArgument
	}
	payload, err := json.Marshal(verifyRequest{
		ReceiptData:            base64Receipt,
		Password:               v.sharedSecret,
		ExcludeOldTransactions: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal receipt request: %w", err)
	}

	url := v.productionURL
	if sandboxHint {
		url = v.sandboxURL
	}
	resp, err := v.post(ctx, url, payload)
	if err != nil {
		return nil, err
	}
	if resp.Status == adapter.ReceiptStatusSandboxInProduction {
		resp, err = v.post(ctx, v.sandboxURL, payload)
		if err != nil {
			return nil, err
		}
	}
	return decodeVerification(resp), nil
}

func (v *AppleVerifier) post(ctx context.Context, url string, payload []byte) (*verifyResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("verifyReceipt: %w", domain.ErrProviderUnavailable)
		}
		return nil, fmt.Errorf("verifyReceipt: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("verifyReceipt status %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	var out verifyResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse verification response: %w", err)
	}
	return &out, nil
}

func decodeVerification(resp *verifyResponse) *adapter.ReceiptVerification {
	out := &adapter.ReceiptVerification{
		Status:      resp.Status,
		Environment: resp.Environment,
	}
	if resp.Status != adapter.ReceiptStatusOK {
		out.Message = StatusMessage(resp.Status)
	}
	for _, item := range resp.LatestReceiptInfo {
		tx := adapter.ReceiptTransaction{
			ProductID:             item.ProductID,
			TransactionID:         item.TransactionID,
			OriginalTransactionID: item.OriginalTransactionID,
			PurchaseAt:            msToTime(item.PurchaseDateMS),
		}
		if item.ExpiresDateMS != "" {
			exp := msToTime(item.ExpiresDateMS)
			if !exp.IsZero() {
				tx.ExpiresAt = &exp
			}
		}
		out.Transactions = append(out.Transactions, tx)
	}
	return out
}

func msToTime(ms string) time.Time {
	n, err := strconv.ParseInt(ms, 10, 64)
	if err != nil || n <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(n)
}
