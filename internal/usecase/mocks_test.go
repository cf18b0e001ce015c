//go:build !integration

package usecase_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// =============================
// Repositories
// =============================

// ---- Mock AccountRepository ----

type MockAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*model.Account

	FindByIDFunc          func(ctx context.Context, tx repository.Tx, id string) (*model.Account, error)
	UpdateEntitlementFunc func(ctx context.Context, tx repository.Tx, accountID string, snap *model.EntitlementSnapshot) error
}

var _ repository.AccountRepository = (*MockAccountRepo)(nil)

func NewMockAccountRepo() *MockAccountRepo {
	return &MockAccountRepo{accounts: make(map[string]*model.Account)}
}

func (m *MockAccountRepo) Save(ctx context.Context, tx repository.Tx, a *model.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.accounts[a.ID] = &cp
	return nil
}

func (m *MockAccountRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Account, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, tx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *MockAccountRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockAccountRepo) UpdateEntitlement(ctx context.Context, tx repository.Tx, accountID string, snap *model.EntitlementSnapshot) error {
	if m.UpdateEntitlementFunc != nil {
		return m.UpdateEntitlementFunc(ctx, tx, accountID, snap)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return domain.ErrNotFound
	}
	a.Entitlement = *snap
	return nil
}

func (m *MockAccountRepo) ListWithActiveTrial(ctx context.Context, tx repository.Tx, limit int) ([]*model.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Account
	for _, a := range m.accounts {
		if a.Entitlement.Status == model.EntitlementTrial && a.Entitlement.TrialEnd != nil {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	subs map[string]*model.Subscription // keyed by subscription id

	SaveFunc          func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindByAccountFunc func(ctx context.Context, tx repository.Tx, accountID string) (*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{subs: make(map[string]*model.Subscription)}
}

func (m *MockSubscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, s)
	}
	return m.put(s)
}

// put is the default store path, reachable from SaveFunc overrides.
func (m *MockSubscriptionRepo) put(s *model.Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// one record per account, like the store's unique constraint
	for id, existing := range m.subs {
		if existing.AccountID == s.AccountID && id != s.ID {
			return domain.ErrAlreadyExists
		}
	}
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *MockSubscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.subs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *MockSubscriptionRepo) FindByAccount(ctx context.Context, tx repository.Tx, accountID string) (*model.Subscription, error) {
	if m.FindByAccountFunc != nil {
		return m.FindByAccountFunc(ctx, tx, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.AccountID == accountID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindByProviderSubscriptionID(ctx context.Context, tx repository.Tx, provider, providerSubID string) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subs {
		if s.Provider == provider && s.ProviderSubscriptionID == providerSubID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockSubscriptionRepo) FindTrialing(ctx context.Context, tx repository.Tx, withinDays int, limit int) ([]*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	horizon := time.Now().AddDate(0, 0, withinDays)
	var out []*model.Subscription
	for _, s := range m.subs {
		if s.Status == model.SubscriptionTrialing && s.TrialEnd != nil && s.TrialEnd.Before(horizon) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TrialEnd.Before(*out[j].TrialEnd) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSubscriptionRepo) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[model.SubscriptionStatus]int)
	for _, s := range m.subs {
		out[s.Status]++
	}
	return out, nil
}

// ---- Mock TransactionRepository ----

type MockTransactionRepo struct {
	mu  sync.Mutex
	txs map[string]*model.Transaction

	SaveFunc         func(ctx context.Context, tx repository.Tx, t *model.Transaction) error
	UpdateStatusFunc func(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, providerTxID *string, processedAt *time.Time, errInfo *string) error
	SumByPeriodFunc  func(ctx context.Context, period string) (int64, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{txs: make(map[string]*model.Transaction)}
}

func (m *MockTransactionRepo) Save(ctx context.Context, tx repository.Tx, t *model.Transaction) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, tx, t)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.txs[t.ID] = &cp
	return nil
}

func (m *MockTransactionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *MockTransactionRepo) FindByProviderTransactionID(ctx context.Context, tx repository.Tx, provider, providerTxID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.Provider == provider && t.ProviderTransactionID == providerTxID && providerTxID != "" {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) FindByPreferenceID(ctx context.Context, tx repository.Tx, provider, preferenceID string) (*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.txs {
		if t.Provider == provider && t.ProviderPreferenceID == preferenceID && preferenceID != "" {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *MockTransactionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.TransactionStatus, providerTxID *string, processedAt *time.Time, errInfo *string) error {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, tx, id, status, providerTxID, processedAt, errInfo)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.txs[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.Status = status
	if providerTxID != nil {
		t.ProviderTransactionID = *providerTxID
	}
	if processedAt != nil {
		t.ProcessedAt = processedAt
	}
	if errInfo != nil {
		t.ErrorInfo = errInfo
	}
	t.UpdatedAt = time.Now()
	return nil
}

func (m *MockTransactionRepo) ListCompletedSubscriptionsSince(ctx context.Context, tx repository.Tx, since time.Time, limit int) ([]*model.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Transaction
	for _, t := range m.txs {
		completedAt := t.CreatedAt
		if t.ProcessedAt != nil {
			completedAt = *t.ProcessedAt
		}
		if t.Status == model.TransactionCompleted && t.Type == model.TransactionSubscription && !completedAt.Before(since) {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockTransactionRepo) SumByPeriod(ctx context.Context, tx repository.Tx, period string) (int64, error) {
	if m.SumByPeriodFunc != nil {
		return m.SumByPeriodFunc(ctx, period)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var sum int64
	for _, t := range m.txs {
		if t.Status == model.TransactionCompleted {
			sum += t.Amount
		}
	}
	return sum, nil
}

// ---- Mock AuditRepository ----

type MockAuditRepo struct {
	mu     sync.Mutex
	Events []*model.AuditEvent

	AppendFunc func(ctx context.Context, tx repository.Tx, e *model.AuditEvent) error
}

var _ repository.AuditRepository = (*MockAuditRepo)(nil)

func NewMockAuditRepo() *MockAuditRepo {
	return &MockAuditRepo{}
}

func (m *MockAuditRepo) Append(ctx context.Context, tx repository.Tx, e *model.AuditEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, tx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, e)
	return nil
}

func (m *MockAuditRepo) ListByAccount(ctx context.Context, tx repository.Tx, accountID string, since time.Time, limit int) ([]*model.AuditEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.AuditEvent
	for _, e := range m.Events {
		if e.AccountID == accountID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// CountByType returns how many recorded events carry the given type.
func (m *MockAuditRepo) CountByType(eventType string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.EventType == eventType {
			n++
		}
	}
	return n
}

// ---- Mock NotificationLogRepository ----

type MockNotificationLogRepo struct {
	mu   sync.Mutex
	sent map[string]bool
}

var _ repository.NotificationLogRepository = (*MockNotificationLogRepo)(nil)

func NewMockNotificationLogRepo() *MockNotificationLogRepo {
	return &MockNotificationLogRepo{sent: make(map[string]bool)}
}

func notifKey(accountID, kind, day string) string {
	return fmt.Sprintf("%s|%s|%s", accountID, kind, day)
}

func (m *MockNotificationLogRepo) Save(ctx context.Context, tx repository.Tx, accountID, kind string, thresholdDays int, day string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := notifKey(accountID, kind, day)
	if m.sent[k] {
		return domain.ErrAlreadyExists
	}
	m.sent[k] = true
	return nil
}

func (m *MockNotificationLogRepo) Exists(ctx context.Context, tx repository.Tx, accountID, kind, day string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent[notifKey(accountID, kind, day)], nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

// WithTx runs the function immediately with NoTX unless a custom
// WithTxFunc is assigned.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock BillingGateway ----

type MockBillingGateway struct {
	mu sync.Mutex

	CreatePreferenceFunc func(ctx context.Context, amount int64, description, payerEmail string, urls adapter.ReturnURLs) (*adapter.CheckoutIntent, error)
	PaymentStatusFunc    func(ctx context.Context, paymentID string) (string, string, error)

	Created []adapter.CheckoutIntent
}

var _ adapter.BillingGateway = (*MockBillingGateway)(nil)

func (m *MockBillingGateway) Name() string { return "mercadopago" }

func (m *MockBillingGateway) CreatePreference(ctx context.Context, amount int64, description, payerEmail string, urls adapter.ReturnURLs) (*adapter.CheckoutIntent, error) {
	if m.CreatePreferenceFunc != nil {
		return m.CreatePreferenceFunc(ctx, amount, description, payerEmail, urls)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	intent := adapter.CheckoutIntent{
		PreferenceID: "pref-" + description,
		RedirectURL:  "https://checkout.example/pref",
	}
	m.Created = append(m.Created, intent)
	return &intent, nil
}

func (m *MockBillingGateway) PaymentStatus(ctx context.Context, paymentID string) (string, string, error) {
	if m.PaymentStatusFunc != nil {
		return m.PaymentStatusFunc(ctx, paymentID)
	}
	return "", "", domain.ErrNotFound
}

// ---- Mock ReceiptVerifier ----

type MockReceiptVerifier struct {
	VerifyReceiptFunc func(ctx context.Context, base64Receipt string, sandboxHint bool) (*adapter.ReceiptVerification, error)
}

var _ adapter.ReceiptVerifier = (*MockReceiptVerifier)(nil)

func (m *MockReceiptVerifier) VerifyReceipt(ctx context.Context, base64Receipt string, sandboxHint bool) (*adapter.ReceiptVerification, error) {
	if m.VerifyReceiptFunc != nil {
		return m.VerifyReceiptFunc(ctx, base64Receipt, sandboxHint)
	}
	return &adapter.ReceiptVerification{Status: adapter.ReceiptStatusOK}, nil
}

// ---- Mock TrialNotifier ----

type MockTrialNotifier struct {
	mu       sync.Mutex
	Notified []struct {
		AccountID string
		Days      int
	}

	NotifyTrialEndingFunc func(ctx context.Context, accountID string, daysRemaining int) error
}

var _ adapter.TrialNotifier = (*MockTrialNotifier)(nil)

func (m *MockTrialNotifier) NotifyTrialEnding(ctx context.Context, accountID string, daysRemaining int) error {
	if m.NotifyTrialEndingFunc != nil {
		return m.NotifyTrialEndingFunc(ctx, accountID, daysRemaining)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notified = append(m.Notified, struct {
		AccountID string
		Days      int
	}{accountID, daysRemaining})
	return nil
}
