package model

import (
	"time"

	"subscription-billing/internal/domain"
)

type PlanCode string

const (
	PlanWeekly    PlanCode = "weekly"
	PlanMonthly   PlanCode = "monthly"
	PlanQuarterly PlanCode = "quarterly"
	PlanSemestral PlanCode = "semestral"
	PlanYearly    PlanCode = "yearly"
)

// Plan is a purchasable subscription plan. Prices are stored in CLP as
// integers to avoid float errors.
type Plan struct {
	Code           PlanCode
	Name           string
	PriceCLP       int64
	DurationDays   int    // fallback duration when the provider omits an expiry
	AppleProductID string // App Store product id mapped to this plan
}

func (p *Plan) IsZero() bool { return p == nil || p.Code == "" }

// PlanCatalog is the static plan table. CLP has no minor unit, so amounts
// are whole pesos.
var PlanCatalog = []Plan{
	{Code: PlanWeekly, Name: "Semanal", PriceCLP: 1200, DurationDays: 7, AppleProductID: "premium_weekly"},
	{Code: PlanMonthly, Name: "Mensual", PriceCLP: 3600, DurationDays: 30, AppleProductID: "premium_monthly"},
	{Code: PlanQuarterly, Name: "Trimestral", PriceCLP: 9600, DurationDays: 90, AppleProductID: "premium_quarterly"},
	{Code: PlanSemestral, Name: "Semestral", PriceCLP: 17400, DurationDays: 180, AppleProductID: "premium_semestral"},
	{Code: PlanYearly, Name: "Anual", PriceCLP: 30000, DurationDays: 365, AppleProductID: "premium_yearly"},
}

// PlanByCode resolves a plan from its code.
func PlanByCode(code PlanCode) (*Plan, error) {
	for i := range PlanCatalog {
		if PlanCatalog[i].Code == code {
			return &PlanCatalog[i], nil
		}
	}
	return nil, domain.ErrInvalidArgument
}

// PlanByProductID resolves a plan from an App Store product id.
func PlanByProductID(productID string) (*Plan, error) {
	for i := range PlanCatalog {
		if PlanCatalog[i].AppleProductID == productID {
			return &PlanCatalog[i], nil
		}
	}
	return nil, domain.ErrUnknownProduct
}

// PeriodEnd returns the end of one billing period starting at from.
// Weekly plans add exactly seven days; the calendar plans add whole
// months/years clamped to the last valid day of the target month, so a
// monthly period starting Jan 31 ends on the last day of February.
func (p *Plan) PeriodEnd(from time.Time) time.Time {
	switch p.Code {
	case PlanWeekly:
		return from.AddDate(0, 0, 7)
	case PlanMonthly:
		return addMonthsClamped(from, 1)
	case PlanQuarterly:
		return addMonthsClamped(from, 3)
	case PlanSemestral:
		return addMonthsClamped(from, 6)
	case PlanYearly:
		return addMonthsClamped(from, 12)
	default:
		return from.AddDate(0, 0, p.DurationDays)
	}
}

// addMonthsClamped adds calendar months without the normalization
// time.AddDate does (Jan 31 + 1 month must not become Mar 3).
func addMonthsClamped(t time.Time, months int) time.Time {
	firstOfTarget := time.Date(t.Year(), t.Month()+time.Month(months), 1,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	day := t.Day()
	if last := firstOfTarget.AddDate(0, 1, -1).Day(); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
