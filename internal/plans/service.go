package plans

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
)

// Service resolves the plan an account is effectively on. Resolution is
// deterministic: among subscription records with a qualifying status, the one
// with the latest non-null period end wins, ties broken by latest creation;
// with no qualifying record the account is on the free plan.
type Service interface {
	GetEffectiveSubscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionRecord, error)
	GetEffectivePlanCode(ctx context.Context, userID uuid.UUID) (string, error)
	GetEffectivePlan(ctx context.Context, userID uuid.UUID) (Plan, error)
	FeatureEnabled(ctx context.Context, userID uuid.UUID, feature string) (bool, error)
	ShouldWatermark(ctx context.Context, userID uuid.UUID) (bool, error)
	ListPricedPlans(ctx context.Context) ([]models.BillingPlan, error)
}

type service struct {
	repo Repository
}

// NewService wires a plan resolver with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetEffectiveSubscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionRecord, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}

	records, err := s.repo.ListSubscriptionsByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	var effective *models.SubscriptionRecord
	for i := range records {
		record := &records[i]
		if !record.Status.Qualifies() {
			continue
		}
		if effective == nil || supersedes(record, effective) {
			effective = record
		}
	}
	return effective, nil
}

// supersedes reports whether candidate outranks current. A non-null period
// end always beats a null one; later period ends beat earlier ones; equal
// period ends fall back to creation time.
func supersedes(candidate, current *models.SubscriptionRecord) bool {
	candEnd, currEnd := candidate.CurrentPeriodEnd, current.CurrentPeriodEnd
	switch {
	case candEnd == nil && currEnd == nil:
		return candidate.CreatedAt.After(current.CreatedAt)
	case candEnd == nil:
		return false
	case currEnd == nil:
		return true
	case candEnd.Equal(*currEnd):
		return candidate.CreatedAt.After(current.CreatedAt)
	default:
		return candEnd.After(*currEnd)
	}
}

func (s *service) GetEffectivePlanCode(ctx context.Context, userID uuid.UUID) (string, error) {
	sub, err := s.GetEffectiveSubscription(ctx, userID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return FreePlanCode, nil
	}
	if _, ok := PlanByCode(sub.PlanCode); !ok {
		return FreePlanCode, nil
	}
	return sub.PlanCode, nil
}

func (s *service) GetEffectivePlan(ctx context.Context, userID uuid.UUID) (Plan, error) {
	code, err := s.GetEffectivePlanCode(ctx, userID)
	if err != nil {
		return Plan{}, err
	}
	plan, ok := PlanByCode(code)
	if !ok {
		plan = FreePlan()
	}
	// A billing_plans row, when present, carries the authoritative monthly
	// allotment for the tier.
	row, err := s.repo.GetBillingPlan(ctx, plan.Code)
	if err != nil {
		return Plan{}, err
	}
	if row != nil && row.MonthlyCredits > 0 {
		plan.MonthlyCredits = row.MonthlyCredits
	}
	return plan, nil
}

func (s *service) FeatureEnabled(ctx context.Context, userID uuid.UUID, feature string) (bool, error) {
	plan, err := s.GetEffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.HasFeature(feature), nil
}

func (s *service) ShouldWatermark(ctx context.Context, userID uuid.UUID) (bool, error) {
	plan, err := s.GetEffectivePlan(ctx, userID)
	if err != nil {
		return false, err
	}
	return plan.Watermark, nil
}

func (s *service) ListPricedPlans(ctx context.Context) ([]models.BillingPlan, error) {
	return s.repo.ListBillingPlans(ctx)
}
