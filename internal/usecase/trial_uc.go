package usecase

import (
	"context"
	"errors"
	"strconv"
	"time"

	"subscription-billing/internal/domain"
	"subscription-billing/internal/domain/model"
	"subscription-billing/internal/domain/ports/adapter"
	"subscription-billing/internal/domain/ports/repository"
	"subscription-billing/internal/infra/metrics"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"
)

// Compile-time check
var _ TrialUseCase = (*trialUC)(nil)

// notificationKindTrialEnding keys trial-ending rows in the notification
// log.
const notificationKindTrialEnding = "trial_ending"

// TrialPassResult summarizes one monitor pass.
type TrialPassResult struct {
	Scanned  int `json:"scanned"`
	Notified int `json:"notified"`
	Expired  int `json:"expired"`
}

type TrialUseCase interface {
	// CheckAndNotify runs one monitor pass: notifies accounts whose trial
	// ends within the threshold (once per account per day) and expires
	// trials whose window has passed.
	CheckAndNotify(ctx context.Context) (*TrialPassResult, error)
	// ExpireTrial downgrades both entitlement representations of an
	// account whose trial window is over.
	ExpireTrial(ctx context.Context, accountID string) error
}

type trialUC struct {
	accounts      repository.AccountRepository
	subs          repository.SubscriptionRepository
	notifications repository.NotificationLogRepository
	tm            repository.TransactionManager
	notifier      adapter.TrialNotifier // nil disables delivery, decisions are still logged
	audit         *AuditEmitter
	thresholdMax  int // notify when daysRemaining is in [1, thresholdMax]
	log           *zerolog.Logger
}

func NewTrialUseCase(
	accounts repository.AccountRepository,
	subs repository.SubscriptionRepository,
	notifications repository.NotificationLogRepository,
	tm repository.TransactionManager,
	notifier adapter.TrialNotifier,
	audit *AuditEmitter,
	thresholdMax int,
	logger *zerolog.Logger,
) *trialUC {
	if thresholdMax <= 0 {
		thresholdMax = 2
	}
	trLog := logger.With().Str("component", "TrialUseCase").Logger()
	return &trialUC{
		accounts:      accounts,
		subs:          subs,
		notifications: notifications,
		tm:            tm,
		notifier:      notifier,
		audit:         audit,
		thresholdMax:  thresholdMax,
		log:           &trLog,
	}
}

const trialScanLimit = 1000

// trialCandidate is one account in a monitor pass with its trial window
// resolved from whichever representation still carries it.
type trialCandidate struct {
	accountID string
	trialEnd  time.Time
}

func (u *trialUC) CheckAndNotify(ctx context.Context) (*TrialPassResult, error) {
	now := time.Now()

	// Snapshot first, subscription records as the fallback for accounts
	// whose snapshot was overwritten but whose record still says trialing.
	seen := make(map[string]trialCandidate)
	accts, err := u.accounts.ListWithActiveTrial(ctx, nil, trialScanLimit)
	if err != nil {
		return nil, err
	}
	for _, a := range accts {
		if a.Entitlement.TrialEnd == nil {
			continue
		}
		seen[a.ID] = trialCandidate{accountID: a.ID, trialEnd: *a.Entitlement.TrialEnd}
	}
	subs, err := u.subs.FindTrialing(ctx, nil, u.thresholdMax, trialScanLimit)
	if err != nil {
		return nil, err
	}
	for _, s := range subs {
		if s.TrialEnd == nil {
			continue
		}
		if _, ok := seen[s.AccountID]; !ok {
			seen[s.AccountID] = trialCandidate{accountID: s.AccountID, trialEnd: *s.TrialEnd}
		}
	}

	res := &TrialPassResult{Scanned: len(seen)}
	for _, c := range seen {
		if now.After(c.trialEnd) {
			if err := u.ExpireTrial(ctx, c.accountID); err != nil {
				u.log.Error().Err(err).Str("account_id", c.accountID).Msg("trial expiry failed")
				continue
			}
			res.Expired++
			continue
		}

		days := ceilDaysUntil(c.trialEnd, now)
		if days < 1 || days > u.thresholdMax {
			continue
		}
		notified, err := u.notifyOnce(ctx, c.accountID, days, now)
		if err != nil {
			u.log.Error().Err(err).Str("account_id", c.accountID).Msg("trial notification failed")
			continue
		}
		if notified {
			res.Notified++
		}
	}

	if res.Expired > 0 {
		metrics.IncTrialsExpired(res.Expired)
	}
	u.log.Info().
		Int("scanned", res.Scanned).
		Int("notified", res.Notified).
		Int("expired", res.Expired).
		Msg("trial monitor pass finished")
	return res, nil
}

// notifyOnce records the notification decision before delivering, so a
// pass that runs more than once per day never notifies twice.
func (u *trialUC) notifyOnce(ctx context.Context, accountID string, days int, now time.Time) (bool, error) {
	day := now.UTC().Format("2006-01-02")
	err := u.notifications.Save(ctx, nil, accountID, notificationKindTrialEnding, days, day)
	if errors.Is(err, domain.ErrAlreadyExists) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if u.notifier != nil {
		if err := u.notifier.NotifyTrialEnding(ctx, accountID, days); err != nil {
			// The decision is recorded; delivery failure is logged, not
			// retried within the pass.
			u.log.Error().Err(err).Str("account_id", accountID).Msg("trial notification delivery failed")
		}
	}

	metrics.IncTrialNotification(strconv.Itoa(days))
	u.audit.Emit(ctx, model.AuditTrialNotified, accountID, "", map[string]any{
		"days_remaining": days,
		"day":            day,
	})
	return true, nil
}

func (u *trialUC) ExpireTrial(ctx context.Context, accountID string) error {
	now := time.Now()
	err := u.tm.WithTx(ctx, pgx.TxOptions{}, func(ctx context.Context, tx repository.Tx) error {
		sub, err := u.subs.FindByAccount(ctx, tx, accountID)
		switch {
		case err == nil:
			if sub.Status == model.SubscriptionTrialing {
				sub.Status = model.SubscriptionExpired
				sub.EndedAt = &now
				sub.UpdatedAt = now
				if err := u.subs.Save(ctx, tx, sub); err != nil {
					return err
				}
			}
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}

		acct, err := u.accounts.FindByID(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acct.Entitlement.Status != model.EntitlementTrial {
			return nil
		}
		snap := acct.Entitlement
		snap.Status = model.EntitlementExpired
		return u.accounts.UpdateEntitlement(ctx, tx, accountID, &snap)
	})
	if err != nil {
		return err
	}

	u.audit.Emit(ctx, model.AuditTrialExpired, accountID, "", nil)
	u.log.Info().Str("account_id", accountID).Msg("trial expired")
	return nil
}

func ceilDaysUntil(end, now time.Time) int {
	const day = 24 * time.Hour
	d := end.Sub(now)
	if d <= 0 {
		return 0
	}
	n := int(d / day)
	if d%day > 0 {
		n++
	}
	return n
}
