package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/internal/subscriptions"
	"github.com/lumora-ai/lumora-backend/pkg/config"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

const (
	signatureHeader          = "X-Billing-Signature"
	billingWebhookGuardScope = "billing-webhook"
)

type billingGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// BillingWebhook handles signed subscription lifecycle notifications from
// the payment processor.
func BillingWebhook(svc subscriptions.Service, cfg config.BillingConfig, guard billingGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := strings.TrimSpace(r.Header.Get(signatureHeader))
		if signature == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "billing signature missing"))
			return
		}
		if !validateBillingSignature(payload, cfg.WebhookSecret, signature) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid billing signature"))
			return
		}

		var event subscriptions.ProviderEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode event"))
			return
		}
		if event.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}

		if !subscriptions.IsSubscriptionEvent(event.Type) {
			// Acknowledge so the processor stops retrying event types this
			// service does not consume.
			responses.WriteSuccess(w, nil)
			return
		}

		already, err := guard.CheckAndMarkProcessed(ctx, billingWebhookGuardScope, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if already {
			responses.WriteSuccess(w, nil)
			return
		}

		if _, err := svc.ApplyBillingEvent(ctx, &event); err != nil {
			if delErr := guard.Delete(ctx, billingWebhookGuardScope, event.ID); delErr != nil && logg != nil {
				logg.Error(ctx, "failed to clear processed mark", delErr)
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logCtx := logg.WithFields(ctx, map[string]any{
				"event_id":   event.ID,
				"event_type": event.Type,
			})
			logg.Info(logCtx, "billing event processed")
		}
		responses.WriteSuccess(w, nil)
	}
}

func validateBillingSignature(payload []byte, secret, header string) bool {
	if header == "" || secret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header))
}
