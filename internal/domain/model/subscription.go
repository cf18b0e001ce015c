package model

import (
	"time"

	"subscription-billing/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionTrialing          SubscriptionStatus = "trialing"
	SubscriptionActive            SubscriptionStatus = "active"
	SubscriptionPastDue           SubscriptionStatus = "past_due"
	SubscriptionUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionCanceled          SubscriptionStatus = "canceled"
	SubscriptionIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionExpired           SubscriptionStatus = "expired"
)

// Subscription is the normalized entitlement record, at most one per
// account (store-enforced unique constraint). Created lazily on first
// checkout or trial grant and never hard-deleted.
type Subscription struct {
	ID                 string // UUID
	AccountID          string // UUID of account, unique
	Plan               PlanCode
	Status             SubscriptionStatus
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	EndedAt            *time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time

	Provider               string
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProviderTransactionID  string
	ProviderPreferenceID   string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// NewTrialSubscription starts a trial of the given length for an account.
func NewTrialSubscription(id, accountID string, plan *Plan, trialDays int) (*Subscription, error) {
	if id == "" || accountID == "" || plan.IsZero() || trialDays <= 0 {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	end := now.AddDate(0, 0, trialDays)
	return &Subscription{
		ID:         id,
		AccountID:  accountID,
		Plan:       plan.Code,
		Status:     SubscriptionTrialing,
		TrialStart: &now,
		TrialEnd:   &end,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// IsActive reports whether the record grants access at now: status must be
// active or trialing and the current period must not be over.
func (s *Subscription) IsActive(now time.Time) bool {
	if s == nil {
		return false
	}
	switch s.Status {
	case SubscriptionActive:
		return s.CurrentPeriodEnd != nil && !now.After(*s.CurrentPeriodEnd)
	case SubscriptionTrialing:
		return s.TrialEnd != nil && !now.After(*s.TrialEnd)
	default:
		return false
	}
}

// IsInTrial reports whether now falls inside the trial window.
func (s *Subscription) IsInTrial(now time.Time) bool {
	if s == nil || s.Status != SubscriptionTrialing || s.TrialStart == nil || s.TrialEnd == nil {
		return false
	}
	return !now.Before(*s.TrialStart) && !now.After(*s.TrialEnd)
}

// DaysRemaining returns ceil((periodEnd-now)/day) for the relevant window
// (trial end while trialing, period end otherwise); 0 when nothing remains.
func (s *Subscription) DaysRemaining(now time.Time) int {
	var end *time.Time
	if s.Status == SubscriptionTrialing {
		end = s.TrialEnd
	} else {
		end = s.CurrentPeriodEnd
	}
	if end == nil || now.After(*end) {
		return 0
	}
	return ceilDays(end.Sub(now))
}
