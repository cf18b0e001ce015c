package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
)

var _ adapter.TrialNotifier = (*WebhookNotifier)(nil)

// WebhookNotifier delivers trial-ending notices by POSTing a small JSON
// payload to a downstream endpoint (messaging service, CRM hook). Delivery
// is best effort; the caller owns retry and dedup decisions.
type WebhookNotifier struct {
	url    string
	client *http.Client
	log    *zerolog.Logger
}

func NewWebhookNotifier(url string, timeout time.Duration, logger *zerolog.Logger) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	nLog := logger.With().Str("component", "WebhookNotifier").Logger()
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		log:    &nLog,
	}
}

type trialEndingPayload struct {
	Event         string `json:"event"`
	AccountID     string `json:"account_id"`
	DaysRemaining int    `json:"days_remaining"`
	SentAt        string `json:"sent_at"`
}

func (n *WebhookNotifier) NotifyTrialEnding(ctx context.Context, accountID string, daysRemaining int) error {
	body, err := json.Marshal(trialEndingPayload{
		Event:         "trial.ending",
		AccountID:     accountID,
		DaysRemaining: daysRemaining,
		SentAt:        time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", domain.ErrProviderUnavailable)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint answered %d: %w", resp.StatusCode, domain.ErrProviderUnavailable)
	}
	n.log.Debug().Str("account_id", accountID).Int("days_remaining", daysRemaining).Msg("trial notice delivered")
	return nil
}
