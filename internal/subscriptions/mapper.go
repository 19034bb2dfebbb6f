package subscriptions

import (
	"strings"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
)

// mapProviderStatus normalizes the provider's status vocabulary, including
// the spelling variants seen in practice, into the canonical enum.
func mapProviderStatus(raw string) (enums.SubscriptionStatus, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing", "trial", "in_trial":
		return enums.SubscriptionStatusTrialing, nil
	case "active":
		return enums.SubscriptionStatusActive, nil
	case "past_due", "pastdue":
		return enums.SubscriptionStatusPastDue, nil
	case "canceled", "cancelled":
		return enums.SubscriptionStatusCanceled, nil
	case "incomplete":
		return enums.SubscriptionStatusIncomplete, nil
	case "incomplete_expired":
		return enums.SubscriptionStatusIncompleteExpired, nil
	case "unpaid":
		return enums.SubscriptionStatusUnpaid, nil
	case "paused":
		return enums.SubscriptionStatusPaused, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeDependency, "unknown subscription status "+raw)
	}
}

// BuildRecordFromEvent maps a provider event into the canonical subscription
// record. Deleted subscriptions map to canceled.
func BuildRecordFromEvent(event *ProviderEvent) (*models.SubscriptionRecord, error) {
	if event == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "billing event is nil")
	}

	sub := event.Subscription
	if strings.TrimSpace(sub.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "billing event missing subscription id")
	}

	userID, err := uuid.Parse(sub.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "billing event has invalid user id")
	}

	status, err := mapProviderStatus(sub.Status)
	if err != nil {
		return nil, err
	}
	if event.Type == EventSubscriptionDeleted {
		status = enums.SubscriptionStatusCanceled
	}

	return &models.SubscriptionRecord{
		UserID:                 userID,
		ProviderSubscriptionID: sub.ID,
		PlanCode:               strings.TrimSpace(sub.PlanCode),
		Status:                 status,
		CurrentPeriodStart:     sub.CurrentPeriodStart,
		CurrentPeriodEnd:       sub.CurrentPeriodEnd,
		Metadata:               sub.Metadata,
	}, nil
}
