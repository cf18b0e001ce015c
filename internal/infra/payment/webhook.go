package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/ports/adapter"
)

// ParseWebhook translates a raw MercadoPago webhook body into a typed
// envelope. Shape translation only; unknown topics come back with
// EventUnknown so the orchestrator can log and acknowledge them.
func ParseWebhook(body []byte) (*adapter.WebhookEnvelope, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("parse webhook body: %w", domain.ErrInvalidArgument)
	}

	env := &adapter.WebhookEnvelope{Kind: adapter.EventUnknown, Raw: raw}

	topic, _ := raw["type"].(string)
	if topic == "" {
		topic, _ = raw["topic"].(string)
	}
	env.Kind = KindFromTopic(topic)

	if data, ok := raw["data"].(map[string]any); ok {
		env.ProviderObjectID = stringField(data, "id")
		env.PreferenceID = stringField(data, "preference_id")
		env.Status = stringField(data, "status")
	}
	if env.ProviderObjectID == "" {
		env.ProviderObjectID = stringField(raw, "id")
	}
	if env.Status == "" {
		env.Status = stringField(raw, "status")
	}
	return env, nil
}

// KindFromTopic maps a MercadoPago topic string to an event kind. Topics
// come with suffixes ("payment.updated"), so matching is by prefix.
func KindFromTopic(topic string) adapter.EventKind {
	switch {
	case strings.HasPrefix(topic, "payment"):
		return adapter.EventPaymentSettled
	case strings.HasPrefix(topic, "subscription"):
		return adapter.EventSubscriptionStatus
	case strings.HasPrefix(topic, "preapproval"):
		return adapter.EventPreapproval
	default:
		return adapter.EventUnknown
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

// VerifyWebhookSignature checks the x-signature header MercadoPago sends
// with each webhook: "ts=<unix>,v1=<hmac>", where the HMAC-SHA256 is taken
// over "id:<dataID>;request-id:<requestID>;ts:<ts>;" with the configured
// secret.
func VerifyWebhookSignature(secret, signatureHeader, requestID, dataID string) bool {
	if secret == "" || signatureHeader == "" {
		return false
	}

	var ts, v1 string
	for _, part := range strings.Split(signatureHeader, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "ts":
			ts = kv[1]
		case "v1":
			v1 = kv[1]
		}
	}
	if ts == "" || v1 == "" {
		return false
	}

	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	expected := hex.EncodeToString(h.Sum(nil))

	return hmac.Equal([]byte(strings.ToLower(v1)), []byte(expected))
}
