package usecase

import (
	"time"

	"subscription-billing/internal/domain/model"
)

// Access-denial reasons surfaced to callers (and the HTTP layer).
const (
	ReasonGranted         = "granted"
	ReasonNoSubscription  = "no_subscription"
	ReasonExpired         = "subscription_expired"
	ReasonTrialExpired    = "trial_expired"
	ReasonTrialNotAllowed = "trial_not_allowed"
)

// entitlementState is the single normalized view over the two persisted
// entitlement representations. Precedence is encoded here once: the
// subscription record wins, the snapshot is the fallback.
type entitlementState struct {
	Status       string // subscription status, or snapshot status when no record exists
	Plan         model.PlanCode
	PeriodStart  *time.Time
	PeriodEnd    *time.Time
	TrialStart   *time.Time
	TrialEnd     *time.Time
	CancelAtEnd  bool
	Provider     string
	FromSnapshot bool
}

func resolveEntitlement(acct *model.Account, sub *model.Subscription) entitlementState {
	if sub != nil {
		return entitlementState{
			Status:      string(sub.Status),
			Plan:        sub.Plan,
			PeriodStart: sub.CurrentPeriodStart,
			PeriodEnd:   sub.CurrentPeriodEnd,
			TrialStart:  sub.TrialStart,
			TrialEnd:    sub.TrialEnd,
			CancelAtEnd: sub.CancelAtPeriodEnd,
			Provider:    sub.Provider,
		}
	}
	snap := &acct.Entitlement
	return entitlementState{
		Status:       string(snap.Status),
		Plan:         snap.Plan,
		PeriodStart:  snap.SubscriptionStart,
		PeriodEnd:    snap.SubscriptionEnd,
		TrialStart:   snap.TrialStart,
		TrialEnd:     snap.TrialEnd,
		Provider:     snap.Provider,
		FromSnapshot: true,
	}
}

// hasPaidAccess reports whether the state grants non-trial access at now.
func (s entitlementState) hasPaidAccess(now time.Time) bool {
	switch s.Status {
	case string(model.SubscriptionActive), string(model.EntitlementPremium):
		return s.PeriodEnd != nil && !now.After(*s.PeriodEnd)
	default:
		return false
	}
}

// inTrial reports whether the state grants trial access at now.
func (s entitlementState) inTrial(now time.Time) bool {
	switch s.Status {
	case string(model.SubscriptionTrialing), string(model.EntitlementTrial):
		return s.TrialEnd != nil && !now.After(*s.TrialEnd)
	default:
		return false
	}
}

// trialExpired reports a trial window that has already been left behind.
func (s entitlementState) trialExpired(now time.Time) bool {
	switch s.Status {
	case string(model.SubscriptionTrialing), string(model.EntitlementTrial):
		return s.TrialEnd != nil && now.After(*s.TrialEnd)
	default:
		return false
	}
}

// daysRemaining returns ceil days to the relevant window end.
func (s entitlementState) daysRemaining(now time.Time) int {
	end := s.PeriodEnd
	if s.Status == string(model.SubscriptionTrialing) || s.Status == string(model.EntitlementTrial) {
		end = s.TrialEnd
	}
	if end == nil || now.After(*end) {
		return 0
	}
	const day = 24 * time.Hour
	d := end.Sub(now)
	n := int(d / day)
	if d%day > 0 {
		n++
	}
	return n
}
