package billing

import (
	"context"
	"encoding/json"
	"errors"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/lumora-ai/lumora-backend/internal/subscriptions"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

const billingConsumerName = "billing-worker"

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Consumer applies subscription lifecycle events from the payment processor's
// Pub/Sub feed to the local subscription mirror.
type Consumer struct {
	subscription *gcppubsub.Subscriber
	applier      subscriptions.Service
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds the billing event consumer.
func NewConsumer(subscription *gcppubsub.Subscriber, applier subscriptions.Service, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if subscription == nil {
		return nil, errors.New("billing subscription is required")
	}
	if applier == nil {
		return nil, errors.New("subscriptions service is required")
	}
	if manager == nil {
		return nil, errors.New("idempotency manager is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &Consumer{
		subscription: subscription,
		applier:      applier,
		manager:      manager,
		logg:         logg,
	}, nil
}

type processResult struct {
	nack bool
}

// Run consumes billing messages until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return c.subscription.Receive(ctx, func(innerCtx context.Context, msg *gcppubsub.Message) {
		if c.handlePayload(innerCtx, msg.ID, msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

func (c *Consumer) handlePayload(ctx context.Context, messageID string, data []byte) processResult {
	fields := map[string]any{"message_id": messageID}
	logCtx := c.logg.WithFields(ctx, fields)

	var event subscriptions.ProviderEvent
	if err := json.Unmarshal(data, &event); err != nil {
		fields["error"] = err.Error()
		c.logg.Warn(c.logg.WithFields(ctx, fields), "invalid billing payload")
		return processResult{}
	}
	fields["event_id"] = event.ID
	fields["event_type"] = event.Type
	logCtx = c.logg.WithFields(ctx, fields)

	if !subscriptions.IsSubscriptionEvent(event.Type) {
		c.logg.Info(logCtx, "event not handled by billing consumer")
		return processResult{}
	}
	if event.ID == "" {
		c.logg.Warn(logCtx, "billing event missing id")
		return processResult{}
	}

	already, err := c.manager.CheckAndMarkProcessed(logCtx, billingConsumerName, event.ID)
	if err != nil {
		c.logg.Error(logCtx, "idempotency check failed", err)
		return processResult{nack: true}
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return processResult{}
	}

	record, err := c.applier.ApplyBillingEvent(logCtx, &event)
	if err != nil {
		// Malformed events never become valid on retry; drop them but keep
		// the processed mark so redeliveries stay quiet.
		if pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
			fields["error"] = err.Error()
			c.logg.Warn(c.logg.WithFields(ctx, fields), "unprocessable billing event dropped")
			return processResult{}
		}
		c.logg.Error(logCtx, "failed to apply billing event", err)
		if delErr := c.manager.Delete(logCtx, billingConsumerName, event.ID); delErr != nil {
			c.logg.Error(logCtx, "failed to clear processed mark", delErr)
		}
		return processResult{nack: true}
	}

	c.logg.Info(c.logg.WithFields(logCtx, map[string]any{
		"subscription_id": record.ProviderSubscriptionID,
		"status":          record.Status.String(),
	}), "billing event applied")
	return processResult{}
}
