package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// UsageEvent records one metered, credit-consuming action. RequestID is the
// caller-supplied idempotency key; the composite unique index guarantees at
// most one event per (account, request id), so retries replay the stored
// result instead of charging again. BalanceAfter is captured at write time so
// a replay can return the same balance the first call saw.
type UsageEvent struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index;uniqueIndex:ux_usage_events_user_request"`
	EventType     string          `gorm:"column:event_type;not null"`
	Cost          int64           `gorm:"column:cost;not null"`
	Tokens        *int64          `gorm:"column:tokens"`
	RequestID     *string         `gorm:"column:request_id;uniqueIndex:ux_usage_events_user_request"`
	TransactionID *uuid.UUID      `gorm:"column:transaction_id;type:uuid"`
	BalanceAfter  int64           `gorm:"column:balance_after;not null"`
	Metadata      json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
