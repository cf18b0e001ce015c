package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
)

const mercadoPagoBaseURL = "https://api.mercadopago.com"

// MercadoPagoGateway implements adapter.BillingGateway using direct HTTP
// calls against the MercadoPago REST API.
type MercadoPagoGateway struct {
	accessToken     string
	baseURL         string
	notificationURL string
	sandbox         bool
	client          *http.Client
}

// NewMercadoPagoGateway creates a gateway with a bounded request timeout.
// notificationURL is attached to every preference so the provider knows
// where to deliver webhooks; empty leaves the account default in place.
func NewMercadoPagoGateway(accessToken, notificationURL string, sandbox bool, timeout time.Duration) (*MercadoPagoGateway, error) {
	if accessToken == "" {
		return nil, domain.ErrConfiguration
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MercadoPagoGateway{
		accessToken:     accessToken,
		baseURL:         mercadoPagoBaseURL,
		notificationURL: notificationURL,
		sandbox:         sandbox,
		client:          &http.Client{Timeout: timeout},
	}, nil
}

func (g *MercadoPagoGateway) Name() string { return "mercadopago" }

type preferenceItem struct {
	Title      string  `json:"title"`
	Quantity   int     `json:"quantity"`
	UnitPrice  float64 `json:"unit_price"`
	CurrencyID string  `json:"currency_id"`
}

type preferenceRequest struct {
	Items           []preferenceItem  `json:"items"`
	Payer           map[string]string `json:"payer,omitempty"`
	BackURLs        map[string]string `json:"back_urls"`
	AutoReturn      string            `json:"auto_return"`
	NotificationURL string            `json:"notification_url,omitempty"`
}

type preferenceResponse struct {
	ID               string `json:"id"`
	InitPoint        string `json:"init_point"`
	SandboxInitPoint string `json:"sandbox_init_point"`
}

// CreatePreference builds a payment intent priced in CLP and returns the
// preference id plus the payer redirect URL.
func (g *MercadoPagoGateway) CreatePreference(ctx context.Context, amount int64, description, payerEmail string, urls adapter.ReturnURLs) (*adapter.CheckoutIntent, error) {
	reqBody := preferenceRequest{
		Items: []preferenceItem{{
			Title:      description,
			Quantity:   1,
			UnitPrice:  float64(amount),
			CurrencyID: "CLP",
		}},
		BackURLs: map[string]string{
			"success": urls.Success,
			"failure": urls.Failure,
			"pending": urls.Pending,
		},
		AutoReturn:      "approved",
		NotificationURL: g.notificationURL,
	}
	if payerEmail != "" {
		reqBody.Payer = map[string]string{"email": payerEmail}
	}

	var resp preferenceResponse
	if err := g.doJSON(ctx, http.MethodPost, "/checkout/preferences", reqBody, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("mercadopago: preference response missing id: %w", domain.ErrOperationFailed)
	}

	redirect := resp.InitPoint
	if g.sandbox && resp.SandboxInitPoint != "" {
		redirect = resp.SandboxInitPoint
	}
	return &adapter.CheckoutIntent{PreferenceID: resp.ID, RedirectURL: redirect}, nil
}

type paymentResponse struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
	Order  struct {
		ID json.Number `json:"id"`
	} `json:"order"`
	PreferenceID string `json:"preference_id"`
}

// PaymentStatus fetches the provider's current status for a payment id.
func (g *MercadoPagoGateway) PaymentStatus(ctx context.Context, paymentID string) (string, string, error) {
	var resp paymentResponse
	if err := g.doJSON(ctx, http.MethodGet, "/v1/payments/"+paymentID, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Status, resp.PreferenceID, nil
}

func (g *MercadoPagoGateway) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("mercadopago %s %s: %w", method, path, domain.ErrProviderUnavailable)
		}
		return fmt.Errorf("mercadopago %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return domain.ErrNotFound
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("mercadopago status %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("mercadopago status %d: %s: %w", resp.StatusCode, string(raw), domain.ErrOperationFailed)
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("unmarshal response: %w, body: %s", err, string(raw))
		}
	}
	return nil
}
