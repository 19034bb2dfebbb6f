package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/enums"
)

// SubscriptionRecord persists one subscription state notification from the
// payment processor. An account accumulates records over its upgrade and
// downgrade history; the plan resolver picks the effective one at read time.
type SubscriptionRecord struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	ProviderSubscriptionID string                   `gorm:"column:provider_subscription_id;not null;unique"`
	PlanCode               string                   `gorm:"column:plan_code;not null"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	Metadata               json.RawMessage          `gorm:"column:metadata;type:jsonb"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
