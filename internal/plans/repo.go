package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
)

// Repository reads subscription state and the priced plan rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionRecord, error)
	ListBillingPlans(ctx context.Context) ([]models.BillingPlan, error)
	GetBillingPlan(ctx context.Context, code string) (*models.BillingPlan, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a plans repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ListSubscriptionsByUser(ctx context.Context, userID uuid.UUID) ([]models.SubscriptionRecord, error) {
	var records []models.SubscriptionRecord
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func (r *repository) ListBillingPlans(ctx context.Context) ([]models.BillingPlan, error) {
	var plans []models.BillingPlan
	err := r.db.WithContext(ctx).
		Where("status = ?", "active").
		Order("price_amount ASC").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repository) GetBillingPlan(ctx context.Context, code string) (*models.BillingPlan, error) {
	var plan models.BillingPlan
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&plan).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &plan, nil
}
