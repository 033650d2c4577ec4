// Package plans defines subscription tiers and the quotas each one grants.
package plans

import (
	"strings"
	"time"

	"fitstogo/internal/config"
	"fitstogo/internal/store"
)

// Unlimited marks a quota with no ceiling.
const Unlimited = -1

// Limits describes one plan.
type Limits struct {
	Type           store.PlanType `json:"type"`
	Name           string         `json:"name"`
	Price          int            `json:"price"`
	TryOnsPerMonth int            `json:"tryOnsPerMonth"`
	MaxPhotos      int            `json:"maxPhotos"`
	HistoryDays    int            `json:"historyDays"`
	Features       []string       `json:"features"`
}

var catalog = map[store.PlanType]Limits{
	store.PlanFree: {
		Type:           store.PlanFree,
		Name:           "Free",
		Price:          0,
		TryOnsPerMonth: 5,
		MaxPhotos:      1,
		HistoryDays:    7,
		Features:       []string{"5 try-ons per month", "1 photo storage", "7-day history"},
	},
	store.PlanBasic: {
		Type:           store.PlanBasic,
		Name:           "Basic",
		Price:          99,
		TryOnsPerMonth: 50,
		MaxPhotos:      5,
		HistoryDays:    30,
		Features:       []string{"50 try-ons per month", "5 photo storage", "30-day history"},
	},
	store.PlanPremium: {
		Type:           store.PlanPremium,
		Name:           "Premium",
		Price:          299,
		TryOnsPerMonth: Unlimited,
		MaxPhotos:      20,
		HistoryDays:    Unlimited,
		Features:       []string{"Unlimited try-ons", "20 photo storage", "Forever history", "Priority processing", "API access"},
	},
}

// All returns every plan, cheapest first.
func All() []Limits {
	return []Limits{catalog[store.PlanFree], catalog[store.PlanBasic], catalog[store.PlanPremium]}
}

// For returns the limits of plan. Unknown plans get FREE limits.
func For(plan store.PlanType) Limits {
	if limits, ok := catalog[plan]; ok {
		return limits
	}
	return catalog[store.PlanFree]
}

// ParseType normalizes a plan name.
func ParseType(value string) (store.PlanType, bool) {
	plan := store.PlanType(strings.ToUpper(strings.TrimSpace(value)))
	_, ok := catalog[plan]
	return plan, ok
}

// Paid reports whether plan can be purchased.
func Paid(plan store.PlanType) bool {
	return plan == store.PlanBasic || plan == store.PlanPremium
}

// PriceID returns the Stripe price configured for plan, or "".
func PriceID(cfg config.Stripe, plan store.PlanType) string {
	switch plan {
	case store.PlanBasic:
		return cfg.PriceBasic
	case store.PlanPremium:
		return cfg.PricePremium
	}
	return ""
}

// AllowsTryOn reports whether another try-on fits in the monthly quota.
func (l Limits) AllowsTryOn(used int) bool {
	return l.TryOnsPerMonth == Unlimited || used < l.TryOnsPerMonth
}

// AllowsPhoto reports whether another photo fits in the storage quota.
func (l Limits) AllowsPhoto(count int) bool {
	return l.MaxPhotos == Unlimited || count < l.MaxPhotos
}

// HistoryCutoff returns the oldest creation time kept for the plan. ok is
// false when history is kept forever.
func (l Limits) HistoryCutoff(now time.Time) (time.Time, bool) {
	if l.HistoryDays == Unlimited {
		return time.Time{}, false
	}
	return now.AddDate(0, 0, -l.HistoryDays), true
}

// MonthStart returns midnight UTC on the first day of now's month.
func MonthStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
