package models

import (
	"time"

	"github.com/google/uuid"
)

// APIKey is a machine credential owned by one account. Only the SHA-256 hash
// of the secret and a short display prefix are persisted; the secret itself
// is returned exactly once at creation. Revocation is terminal.
type APIKey struct {
	ID         uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID     uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	Name       string     `gorm:"column:name;not null"`
	Prefix     string     `gorm:"column:prefix;not null"`
	SecretHash string     `gorm:"column:secret_hash;not null;unique"`
	Revoked    bool       `gorm:"column:revoked;not null;default:false"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
