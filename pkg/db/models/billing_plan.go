package models

import (
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/lumora-ai/lumora-backend/pkg/enums"
)

// BillingPlan captures the local metadata for a subscription plan: the monthly
// credit allotment, the feature keys it unlocks, and display pricing mirrored
// from the payment processor. MonthlyCredits of zero means the plan issues no
// recurring grant (e.g. unlimited tiers).
type BillingPlan struct {
	Code           string           `gorm:"column:code;primaryKey"`
	Name           string           `gorm:"column:name;not null"`
	Status         enums.PlanStatus `gorm:"column:status;not null"`
	MonthlyCredits int64            `gorm:"column:monthly_credits;not null;default:0"`
	PriceAmount    decimal.Decimal  `gorm:"column:price_amount;type:numeric(12,2);not null"`
	CurrencyCode   string           `gorm:"column:currency_code;not null"`
	Features       pq.StringArray   `gorm:"column:features;type:text[];default:ARRAY[]::text[]"`
	CreatedAt      time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// HasFeature reports whether the plan unlocks the given feature key.
func (p BillingPlan) HasFeature(key string) bool {
	for _, feature := range p.Features {
		if feature == key {
			return true
		}
	}
	return false
}
