package models

import (
	"time"

	"github.com/google/uuid"
)

// CreditAccount is the per-account anchor row for ledger writes. The balance
// itself is never stored here; the row exists so concurrent ledger operations
// on one account serialize behind its row lock.
type CreditAccount struct {
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
