package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/enums"
)

// CreditTransaction is one immutable, signed entry in an account's ledger.
// The account balance is defined as the sum of these deltas; rows are never
// updated or deleted, corrections are written as compensating entries.
// GrantPeriod stays NULL for everything except recurring grants, so the
// composite unique index only guards one grant per account per period.
type CreditTransaction struct {
	ID          uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	UserID      uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_credit_tx_user_period"`
	Delta       int64              `gorm:"column:delta;not null"`
	Reason      enums.CreditReason `gorm:"column:reason;not null"`
	GrantPeriod *string            `gorm:"column:grant_period;uniqueIndex:ux_credit_tx_user_period"`
	Metadata    json.RawMessage    `gorm:"column:metadata;type:jsonb"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}
