package subscriptions

import (
	"context"
	"fmt"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

// Service keeps the local subscription mirror in sync with the billing
// provider. Events are upserts keyed by the provider's subscription id, so
// replays and out-of-order deliveries converge on the latest state.
type Service interface {
	ApplyBillingEvent(ctx context.Context, event *ProviderEvent) (*models.SubscriptionRecord, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

// NewService wires a subscriptions service with the provided repository.
func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("subscriptions repository required")
	}
	return &service{repo: repo, logg: logg}, nil
}

func (s *service) ApplyBillingEvent(ctx context.Context, event *ProviderEvent) (*models.SubscriptionRecord, error) {
	incoming, err := BuildRecordFromEvent(event)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindByProviderID(ctx, incoming.ProviderSubscriptionID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		if err := s.repo.Create(ctx, incoming); err != nil {
			return nil, err
		}
		s.logApplied(ctx, event, incoming, "subscription record created")
		return incoming, nil
	}

	existing.PlanCode = incoming.PlanCode
	existing.Status = incoming.Status
	existing.CurrentPeriodStart = incoming.CurrentPeriodStart
	existing.CurrentPeriodEnd = incoming.CurrentPeriodEnd
	if len(incoming.Metadata) > 0 {
		existing.Metadata = incoming.Metadata
	}
	if err := s.repo.Update(ctx, existing); err != nil {
		return nil, err
	}
	s.logApplied(ctx, event, existing, "subscription record updated")
	return existing, nil
}

func (s *service) logApplied(ctx context.Context, event *ProviderEvent, record *models.SubscriptionRecord, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_type":      event.Type,
		"subscription_id": record.ProviderSubscriptionID,
		"plan_code":       record.PlanCode,
		"status":          record.Status.String(),
	}), msg)
}
