//go:build !integration

package web_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/web"
	"subscription-billing/internal/usecase"
)

//
// ---------------- use case mocks ----------------
//

type mockSubUC struct {
	CreateCheckoutFunc      func(ctx context.Context, accountID string, plan model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error)
	HandleProviderEventFunc func(ctx context.Context, env *adapter.WebhookEnvelope) error
	CancelSubscriptionFunc  func(ctx context.Context, accountID string, immediate bool) error
	GetStatusFunc           func(ctx context.Context, accountID string) (*usecase.StatusView, error)
	GetStatusByEmailFunc    func(ctx context.Context, email string) (*usecase.StatusView, error)
	StartTrialFunc          func(ctx context.Context, accountID string, plan model.PlanCode, trialDays int) (*model.Subscription, error)
}

var _ usecase.SubscriptionUseCase = (*mockSubUC)(nil)

func (m *mockSubUC) CreateCheckout(ctx context.Context, accountID string, plan model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error) {
	if m.CreateCheckoutFunc != nil {
		return m.CreateCheckoutFunc(ctx, accountID, plan, urls)
	}
	return &model.Transaction{ID: "tx-1", Amount: 3600, Currency: "CLP", ProviderPreferenceID: "pref-1"}, "https://checkout.example/pref-1", nil
}

func (m *mockSubUC) HandleProviderEvent(ctx context.Context, env *adapter.WebhookEnvelope) error {
	if m.HandleProviderEventFunc != nil {
		return m.HandleProviderEventFunc(ctx, env)
	}
	return nil
}

func (m *mockSubUC) CancelSubscription(ctx context.Context, accountID string, immediate bool) error {
	if m.CancelSubscriptionFunc != nil {
		return m.CancelSubscriptionFunc(ctx, accountID, immediate)
	}
	return nil
}

func (m *mockSubUC) GetStatus(ctx context.Context, accountID string) (*usecase.StatusView, error) {
	if m.GetStatusFunc != nil {
		return m.GetStatusFunc(ctx, accountID)
	}
	return &usecase.StatusView{AccountID: accountID, Status: "free", Source: "snapshot"}, nil
}

func (m *mockSubUC) GetStatusByEmail(ctx context.Context, email string) (*usecase.StatusView, error) {
	if m.GetStatusByEmailFunc != nil {
		return m.GetStatusByEmailFunc(ctx, email)
	}
	return &usecase.StatusView{AccountID: "acc-1", Status: "free", Source: "snapshot"}, nil
}

func (m *mockSubUC) StartTrial(ctx context.Context, accountID string, plan model.PlanCode, trialDays int) (*model.Subscription, error) {
	if m.StartTrialFunc != nil {
		return m.StartTrialFunc(ctx, accountID, plan, trialDays)
	}
	end := time.Now().AddDate(0, 0, trialDays)
	return &model.Subscription{Status: model.SubscriptionTrialing, Plan: plan, TrialEnd: &end}, nil
}

type mockReceiptUC struct {
	ProcessAppleReceiptFunc func(ctx context.Context, accountID, base64Receipt, productID string, sandboxHint bool) (*usecase.ReceiptResult, error)
}

var _ usecase.ReceiptUseCase = (*mockReceiptUC)(nil)

func (m *mockReceiptUC) ProcessAppleReceipt(ctx context.Context, accountID, base64Receipt, productID string, sandboxHint bool) (*usecase.ReceiptResult, error) {
	if m.ProcessAppleReceiptFunc != nil {
		return m.ProcessAppleReceiptFunc(ctx, accountID, base64Receipt, productID, sandboxHint)
	}
	return &usecase.ReceiptResult{Plan: model.PlanMonthly, Active: true, ExpiresAt: time.Now().AddDate(0, 1, 0)}, nil
}

func (m *mockReceiptUC) ProcessSubscriptionReceipt(ctx context.Context, accountID string, verification *adapter.ReceiptVerification, productID, externalTransactionID string) (*usecase.ReceiptResult, error) {
	return nil, domain.ErrOperationFailed
}

type mockReconcileUC struct {
	FindDivergentPaymentsFunc func(ctx context.Context, window, grace time.Duration) ([]usecase.DivergentPayment, error)
	ProcessAllDivergentFunc   func(ctx context.Context, window, grace time.Duration) (*usecase.BatchResult, error)
}

var _ usecase.ReconcileUseCase = (*mockReconcileUC)(nil)

func (m *mockReconcileUC) FindDivergentPayments(ctx context.Context, window, grace time.Duration) ([]usecase.DivergentPayment, error) {
	if m.FindDivergentPaymentsFunc != nil {
		return m.FindDivergentPaymentsFunc(ctx, window, grace)
	}
	return nil, nil
}

func (m *mockReconcileUC) ActivateFromTransaction(ctx context.Context, transactionID string) (*usecase.RecoveryOutcome, error) {
	return &usecase.RecoveryOutcome{TransactionID: transactionID, Activated: true}, nil
}

func (m *mockReconcileUC) ProcessAllDivergent(ctx context.Context, window, grace time.Duration) (*usecase.BatchResult, error) {
	if m.ProcessAllDivergentFunc != nil {
		return m.ProcessAllDivergentFunc(ctx, window, grace)
	}
	return &usecase.BatchResult{}, nil
}

func (m *mockReconcileUC) VerifyUserAccess(ctx context.Context, accountID string) (bool, error) {
	return false, nil
}

type mockAccessUC struct {
	RequireActiveSubscriptionFunc func(ctx context.Context, accountID string, allowTrial bool) (*usecase.AccessDecision, error)
}

var _ usecase.AccessUseCase = (*mockAccessUC)(nil)

func (m *mockAccessUC) RequireActiveSubscription(ctx context.Context, accountID string, allowTrial bool) (*usecase.AccessDecision, error) {
	if m.RequireActiveSubscriptionFunc != nil {
		return m.RequireActiveSubscriptionFunc(ctx, accountID, allowTrial)
	}
	return &usecase.AccessDecision{Allowed: true, Reason: usecase.ReasonGranted, Status: "active"}, nil
}

func (m *mockAccessUC) RequirePremium(ctx context.Context, accountID string) (*usecase.AccessDecision, error) {
	return m.RequireActiveSubscription(ctx, accountID, false)
}

// memAuditRepo collects audit events in memory so tests can assert on them.
type memAuditRepo struct {
	mu     sync.Mutex
	events []*model.AuditEvent
}

var _ repository.AuditRepository = (*memAuditRepo)(nil)

func (r *memAuditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *memAuditRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, since time.Time, limit int) ([]*model.AuditEvent, error) {
	return nil, nil
}

func (r *memAuditRepo) byType(eventType string) []*model.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.AuditEvent
	for _, e := range r.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

//
// ---------------- harness ----------------
//

const (
	testJWTSecret  = "test-jwt-secret"
	testAdminToken = "test-admin-token"
)

type serverDeps struct {
	subUC       *mockSubUC
	receiptUC   *mockReceiptUC
	reconcileUC *mockReconcileUC
	accessUC    *mockAccessUC
	auth        *web.AuthManager
	audit       *memAuditRepo
}

func newTestServer(t *testing.T, webhookSecret string) (*serverDeps, http.Handler) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	deps := &serverDeps{
		subUC:       &mockSubUC{},
		receiptUC:   &mockReceiptUC{},
		reconcileUC: &mockReconcileUC{},
		accessUC:    &mockAccessUC{},
		auth:        web.NewAuthManager(testJWTSecret, time.Hour),
		audit:       &memAuditRepo{},
	}
	srv := web.NewServer(
		deps.subUC, deps.receiptUC, deps.reconcileUC, deps.accessUC,
		deps.auth, usecase.NewAuditEmitter(deps.audit, &logger),
		testAdminToken, webhookSecret,
		adapter.ReturnURLs{Success: "https://app.example/ok"},
		web.ReconcileWindow{Window: 7 * 24 * time.Hour, Grace: 30 * time.Minute},
		&logger,
	)
	return deps, srv.Router()
}

func bearerFor(t *testing.T, auth *web.AuthManager, accountID string) string {
	t.Helper()
	tok, err := auth.Mint(accountID)
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return "Bearer " + tok
}

func doJSON(t *testing.T, h http.Handler, method, path, authHeader string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

//
// ---------------- tests ----------------
//

func TestServer_Auth(t *testing.T) {
	t.Run("rejects a missing token with 401", func(t *testing.T) {
		_, h := newTestServer(t, "")
		rec := doJSON(t, h, http.MethodGet, "/api/v1/subscription", "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", rec.Code)
		}
	})

	t.Run("rejects a token signed with the wrong secret", func(t *testing.T) {
		_, h := newTestServer(t, "")
		other := web.NewAuthManager("other-secret", time.Hour)
		rec := doJSON(t, h, http.MethodGet, "/api/v1/subscription", bearerFor(t, other, "acc-1"), nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", rec.Code)
		}
	})

	t.Run("accepts a valid token and resolves the account", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		var gotAccount string
		deps.subUC.GetStatusFunc = func(ctx context.Context, accountID string) (*usecase.StatusView, error) {
			gotAccount = accountID
			return &usecase.StatusView{AccountID: accountID, Status: "free", Source: "snapshot"}, nil
		}
		rec := doJSON(t, h, http.MethodGet, "/api/v1/subscription", bearerFor(t, deps.auth, "acc-42"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		if gotAccount != "acc-42" {
			t.Errorf("resolved account %q, want acc-42", gotAccount)
		}
	})
}

func TestServer_Checkout(t *testing.T) {
	t.Run("creates a checkout and returns the redirect", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		body := map[string]string{"plan": "monthly", "success_url": "https://app/ok"}
		rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", bearerFor(t, deps.auth, "acc-1"), body)
		if rec.Code != http.StatusCreated {
			t.Fatalf("status %d, want 201: %s", rec.Code, rec.Body.String())
		}
		var resp struct {
			RedirectURL string `json:"redirect_url"`
			Amount      int64  `json:"amount"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.RedirectURL == "" || resp.Amount != 3600 {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("maps an invalid plan to 400", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.subUC.CreateCheckoutFunc = func(ctx context.Context, accountID string, plan model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error) {
			return nil, "", domain.ErrInvalidArgument
		}
		rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", bearerFor(t, deps.auth, "acc-1"), map[string]string{"plan": "lifetime"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d, want 400", rec.Code)
		}
	})

	t.Run("maps an unknown account to 404", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.subUC.CreateCheckoutFunc = func(ctx context.Context, accountID string, plan model.PlanCode, urls adapter.ReturnURLs) (*model.Transaction, string, error) {
			return nil, "", domain.ErrNotFound
		}
		rec := doJSON(t, h, http.MethodPost, "/api/v1/checkout", bearerFor(t, deps.auth, "ghost"), map[string]string{"plan": "monthly"})
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status %d, want 404", rec.Code)
		}
	})
}

func TestServer_CancelSubscription(t *testing.T) {
	t.Run("passes the immediate flag through", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		var gotImmediate bool
		deps.subUC.CancelSubscriptionFunc = func(ctx context.Context, accountID string, immediate bool) error {
			gotImmediate = immediate
			return nil
		}
		rec := doJSON(t, h, http.MethodDelete, "/api/v1/subscription?immediate=true", bearerFor(t, deps.auth, "acc-1"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		if !gotImmediate {
			t.Error("immediate flag was not passed through")
		}
	})
}

func TestServer_AccessCheck(t *testing.T) {
	t.Run("denial returns 403 with a machine-readable reason", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.accessUC.RequireActiveSubscriptionFunc = func(ctx context.Context, accountID string, allowTrial bool) (*usecase.AccessDecision, error) {
			return &usecase.AccessDecision{
				Allowed:      false,
				Reason:       usecase.ReasonTrialExpired,
				Status:       "expired",
				TrialExpired: true,
			}, domain.ErrTrialExpired
		}

		rec := doJSON(t, h, http.MethodGet, "/api/v1/access", bearerFor(t, deps.auth, "acc-1"), nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status %d, want 403", rec.Code)
		}
		var resp struct {
			Reason       string `json:"reason"`
			TrialExpired bool   `json:"trial_expired"`
			Status       string `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Reason != usecase.ReasonTrialExpired || !resp.TrialExpired {
			t.Errorf("unexpected body: %+v", resp)
		}
	})

	t.Run("grant returns 200", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		rec := doJSON(t, h, http.MethodGet, "/api/v1/access", bearerFor(t, deps.auth, "acc-1"), nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
	})

	t.Run("unknown account returns 404", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.accessUC.RequireActiveSubscriptionFunc = func(ctx context.Context, accountID string, allowTrial bool) (*usecase.AccessDecision, error) {
			return nil, domain.ErrNotFound
		}
		rec := doJSON(t, h, http.MethodGet, "/api/v1/access", bearerFor(t, deps.auth, "ghost"), nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status %d, want 404", rec.Code)
		}
	})
}

func mpSignature(secret, requestID, dataID, ts string) string {
	manifest := fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(manifest))
	return fmt.Sprintf("ts=%s,v1=%s", ts, hex.EncodeToString(h.Sum(nil)))
}

func TestServer_MercadoPagoWebhook(t *testing.T) {
	const secret = "webhook-secret"

	t.Run("valid signature reaches the orchestrator", func(t *testing.T) {
		deps, h := newTestServer(t, secret)
		var gotEnv *adapter.WebhookEnvelope
		deps.subUC.HandleProviderEventFunc = func(ctx context.Context, env *adapter.WebhookEnvelope) error {
			gotEnv = env
			return nil
		}

		body := []byte(`{"type":"payment","data":{"id":"12345"}}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
		req.Header.Set("x-request-id", "req-1")
		req.Header.Set("x-signature", mpSignature(secret, "req-1", "12345", "1700000000"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if gotEnv == nil || gotEnv.Kind != adapter.EventPaymentSettled || gotEnv.ProviderObjectID != "12345" {
			t.Errorf("unexpected envelope: %+v", gotEnv)
		}
	})

	t.Run("invalid signature is rejected with 401", func(t *testing.T) {
		deps, h := newTestServer(t, secret)
		called := false
		deps.subUC.HandleProviderEventFunc = func(ctx context.Context, env *adapter.WebhookEnvelope) error {
			called = true
			return nil
		}

		body := []byte(`{"type":"payment","data":{"id":"12345"}}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
		req.Header.Set("x-request-id", "req-1")
		req.Header.Set("x-signature", "ts=1700000000,v1=deadbeef")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", rec.Code)
		}
		if called {
			t.Error("orchestrator must not run for a rejected signature")
		}
		rejected := deps.audit.byType(model.AuditWebhookRejected)
		if len(rejected) != 1 {
			t.Fatalf("rejected audit events %d, want 1", len(rejected))
		}
		if rejected[0].Payload["object_id"] != "12345" {
			t.Errorf("audit payload object_id %v, want 12345", rejected[0].Payload["object_id"])
		}
	})

	t.Run("malformed body returns 400", func(t *testing.T) {
		_, h := newTestServer(t, "")
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader([]byte("not-json")))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d, want 400", rec.Code)
		}
	})

	t.Run("query-parameter delivery resolves kind and object id", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		var gotEnv *adapter.WebhookEnvelope
		deps.subUC.HandleProviderEventFunc = func(ctx context.Context, env *adapter.WebhookEnvelope) error {
			gotEnv = env
			return nil
		}

		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago?type=payment&data.id=777", bytes.NewReader([]byte(`{}`)))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		if gotEnv == nil || gotEnv.Kind != adapter.EventPaymentSettled || gotEnv.ProviderObjectID != "777" {
			t.Errorf("unexpected envelope: %+v", gotEnv)
		}
	})

	t.Run("processing failure returns 5xx to trigger redelivery", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.subUC.HandleProviderEventFunc = func(ctx context.Context, env *adapter.WebhookEnvelope) error {
			return domain.ErrOperationFailed
		}
		body := []byte(`{"type":"payment","data":{"id":"1"}}`)
		req := httptest.NewRequest(http.MethodPost, "/webhooks/mercadopago", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status %d, want 500", rec.Code)
		}
	})
}

func TestServer_AdminEndpoints(t *testing.T) {
	t.Run("admin token required", func(t *testing.T) {
		_, h := newTestServer(t, "")
		rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/reconcile", "Bearer wrong-token", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status %d, want 401", rec.Code)
		}
	})

	t.Run("reconcile runs the batch", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.reconcileUC.ProcessAllDivergentFunc = func(ctx context.Context, window, grace time.Duration) (*usecase.BatchResult, error) {
			return &usecase.BatchResult{Total: 2, Successful: 2}, nil
		}
		rec := doJSON(t, h, http.MethodPost, "/api/v1/admin/reconcile", "Bearer "+testAdminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		var res usecase.BatchResult
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if res.Total != 2 || res.Successful != 2 {
			t.Errorf("unexpected result: %+v", res)
		}
	})

	t.Run("account lookup resolves by email", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		var gotEmail string
		deps.subUC.GetStatusByEmailFunc = func(ctx context.Context, email string) (*usecase.StatusView, error) {
			gotEmail = email
			return &usecase.StatusView{AccountID: "acc-7", Status: "active", Source: "subscription"}, nil
		}
		rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/accounts?email=user%40example.com", "Bearer "+testAdminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200: %s", rec.Code, rec.Body.String())
		}
		if gotEmail != "user@example.com" {
			t.Errorf("looked up %q, want user@example.com", gotEmail)
		}
		var view usecase.StatusView
		if err := json.Unmarshal(rec.Body.Bytes(), &view); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if view.AccountID != "acc-7" || view.Status != "active" {
			t.Errorf("unexpected view: %+v", view)
		}
	})

	t.Run("account lookup without an email is a 400", func(t *testing.T) {
		_, h := newTestServer(t, "")
		rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/accounts", "Bearer "+testAdminToken, nil)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status %d, want 400", rec.Code)
		}
	})

	t.Run("account lookup for an unknown email is a 404", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.subUC.GetStatusByEmailFunc = func(ctx context.Context, email string) (*usecase.StatusView, error) {
			return nil, domain.ErrNotFound
		}
		rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/accounts?email=ghost%40example.com", "Bearer "+testAdminToken, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status %d, want 404", rec.Code)
		}
	})

	t.Run("divergent listing returns annotated items", func(t *testing.T) {
		deps, h := newTestServer(t, "")
		deps.reconcileUC.FindDivergentPaymentsFunc = func(ctx context.Context, window, grace time.Duration) ([]usecase.DivergentPayment, error) {
			return []usecase.DivergentPayment{{TransactionID: "tx-1", AccountID: "acc-1", Plan: model.PlanMonthly, Amount: 3600}}, nil
		}
		rec := doJSON(t, h, http.MethodGet, "/api/v1/admin/divergent", "Bearer "+testAdminToken, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status %d, want 200", rec.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("count %d, want 1", resp.Count)
		}
	})
}
