package subscriptions

import (
	"encoding/json"
	"time"
)

// Billing provider event types the core reacts to. Anything else is
// acknowledged and skipped.
const (
	EventSubscriptionCreated = "subscription.created"
	EventSubscriptionUpdated = "subscription.updated"
	EventSubscriptionDeleted = "subscription.deleted"
)

// ProviderEvent is the billing provider's "subscription state changed"
// notification, delivered over webhook or the billing events subscription.
type ProviderEvent struct {
	ID           string               `json:"id"`
	Type         string               `json:"type"`
	Subscription ProviderSubscription `json:"subscription"`
}

// ProviderSubscription is the provider's view of one subscription.
type ProviderSubscription struct {
	ID                 string          `json:"id"`
	UserID             string          `json:"userId"`
	PlanCode           string          `json:"planCode"`
	Status             string          `json:"status"`
	CurrentPeriodStart *time.Time      `json:"currentPeriodStart"`
	CurrentPeriodEnd   *time.Time      `json:"currentPeriodEnd"`
	Metadata           json.RawMessage `json:"metadata"`
}

// IsSubscriptionEvent reports whether the event type carries subscription
// state this core persists.
func IsSubscriptionEvent(eventType string) bool {
	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		return true
	default:
		return false
	}
}
