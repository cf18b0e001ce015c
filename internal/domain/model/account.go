package model

import (
	"time"

	"subscription-billing/internal/domain"

	"github.com/google/uuid"
)

type EntitlementStatus string

const (
	EntitlementFree    EntitlementStatus = "free"
	EntitlementTrial   EntitlementStatus = "trial"
	EntitlementPremium EntitlementStatus = "premium"
	EntitlementExpired EntitlementStatus = "expired"
)

// EntitlementSnapshot is the compact entitlement view embedded on the
// account row. It mirrors the normalized Subscription record and exists as
// the fast read path; precedence between the two is resolved in the access
// use case, not here.
type EntitlementSnapshot struct {
	Status                EntitlementStatus
	Plan                  PlanCode
	TrialStart            *time.Time
	TrialEnd              *time.Time
	SubscriptionStart     *time.Time
	SubscriptionEnd       *time.Time
	Provider              string
	ProviderTransactionID string
}

// HasPremium reports whether the snapshot grants paid access at now.
func (s *EntitlementSnapshot) HasPremium(now time.Time) bool {
	return s.Status == EntitlementPremium && s.SubscriptionEnd != nil && !now.After(*s.SubscriptionEnd)
}

// HasTrial reports whether the snapshot grants trial access at now.
func (s *EntitlementSnapshot) HasTrial(now time.Time) bool {
	return s.Status == EntitlementTrial && s.TrialEnd != nil && !now.After(*s.TrialEnd)
}

// TrialDaysRemaining returns ceil((trialEnd-now)/day), or 0 when the trial
// is absent or already over.
func (s *EntitlementSnapshot) TrialDaysRemaining(now time.Time) int {
	if s.TrialEnd == nil || now.After(*s.TrialEnd) {
		return 0
	}
	return ceilDays(s.TrialEnd.Sub(now))
}

// Account is a user account with its embedded entitlement snapshot.
type Account struct {
	ID           string
	Email        string
	Name         string
	CreatedAt    time.Time
	LastActiveAt time.Time
	Entitlement  EntitlementSnapshot
}

func NewAccount(id, email, name string) (*Account, error) {
	if id == "" {
		id = uuid.NewString()
	}
	if email == "" {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &Account{
		ID:           id,
		Email:        email,
		Name:         name,
		CreatedAt:    now,
		LastActiveAt: now,
		Entitlement:  EntitlementSnapshot{Status: EntitlementFree},
	}, nil
}

func (a *Account) IsZero() bool { return a == nil || a.ID == "" }
func (a *Account) Touch()       { a.LastActiveAt = time.Now() }

func ceilDays(d time.Duration) int {
	const day = 24 * time.Hour
	n := int(d / day)
	if d%day > 0 {
		n++
	}
	return n
}
