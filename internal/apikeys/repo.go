package apikeys

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
)

// Repository manages persistence for API keys.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, key *models.APIKey) error
	FindBySecretHash(ctx context.Context, secretHash string) (*models.APIKey, error)
	FindByID(ctx context.Context, userID, keyID uuid.UUID) (*models.APIKey, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	MarkRevoked(ctx context.Context, keyID uuid.UUID) error
	TouchLastUsed(ctx context.Context, keyID uuid.UUID, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an API key repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, key *models.APIKey) error {
	if key.ID == uuid.Nil {
		key.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(key).Error
}

func (r *repository) FindBySecretHash(ctx context.Context, secretHash string) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).Where("secret_hash = ?", secretHash).First(&key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) FindByID(ctx context.Context, userID, keyID uuid.UUID) (*models.APIKey, error) {
	var key models.APIKey
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", keyID, userID).
		First(&key).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &key, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	var keys []models.APIKey
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&keys).Error
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (r *repository) MarkRevoked(ctx context.Context, keyID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Update("revoked", true).Error
}

func (r *repository) TouchLastUsed(ctx context.Context, keyID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.APIKey{}).
		Where("id = ?", keyID).
		Update("last_used_at", at).Error
}
