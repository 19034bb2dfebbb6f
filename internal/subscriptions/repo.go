package subscriptions

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
)

// Repository manages persistence for subscription records.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.SubscriptionRecord, error)
	Create(ctx context.Context, record *models.SubscriptionRecord) error
	Update(ctx context.Context, record *models.SubscriptionRecord) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscriptions repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.SubscriptionRecord, error) {
	var record models.SubscriptionRecord
	err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&record).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) Create(ctx context.Context, record *models.SubscriptionRecord) error {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *repository) Update(ctx context.Context, record *models.SubscriptionRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}
