package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/pkg/db"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/metrics"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

// RequestIDConstraint is the unique index guarding one usage event per
// (account, request id).
const RequestIDConstraint = "ux_usage_events_user_request"

// Service meters credit-consuming actions. Record charges the ledger and
// writes the usage event as one atomic unit; a replayed request id returns
// the originally recorded result without charging again.
type Service interface {
	Record(ctx context.Context, input RecordInput) (*RecordResult, error)
	ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EventsPage, error)
}

// AnalyticsSink receives committed usage events, best effort.
type AnalyticsSink interface {
	InsertUsageRows(ctx context.Context, rows []any) error
}

// RecordInput describes one metered action. RequestID is the caller's
// idempotency key; when empty the charge is not replay-protected.
type RecordInput struct {
	UserID    uuid.UUID
	EventType string
	Cost      int64
	Tokens    *int64
	RequestID string
	Metadata  json.RawMessage
}

// RecordResult reports the event and balance the charge committed with. On a
// replay, the values are the ones the first call saw and WasDuplicate is set.
type RecordResult struct {
	EventID      uuid.UUID
	NewBalance   int64
	WasDuplicate bool
}

// EventsPage is one page of an account's usage history.
type EventsPage struct {
	Events     []models.UsageEvent
	NextCursor string
}

type service struct {
	client    *db.Client
	repo      Repository
	ledger    ledger.Service
	analytics AnalyticsSink
	logg      *logger.Logger
	metrics   *metrics.LedgerMetrics
}

// ServiceParams wires the usage service dependencies. Analytics and metrics
// are optional.
type ServiceParams struct {
	Client    *db.Client
	Repo      Repository
	Ledger    ledger.Service
	Analytics AnalyticsSink
	Logger    *logger.Logger
	Metrics   *metrics.LedgerMetrics
}

// NewService validates dependencies and returns the usage meter.
func NewService(params ServiceParams) (Service, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("usage repository required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &service{
		client:    params.Client,
		repo:      params.Repo,
		ledger:    params.Ledger,
		analytics: params.Analytics,
		logg:      params.Logger,
		metrics:   params.Metrics,
	}, nil
}

func (s *service) Record(ctx context.Context, input RecordInput) (*RecordResult, error) {
	if input.UserID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if strings.TrimSpace(input.EventType) == "" {
		return nil, errors.New(errors.CodeValidation, "event type is required")
	}
	if input.Cost <= 0 {
		return nil, errors.New(errors.CodeInvalidAmount, "cost must be positive")
	}

	requestID := strings.TrimSpace(input.RequestID)

	if requestID != "" {
		existing, err := s.repo.FindByRequestID(ctx, input.UserID, requestID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return s.replayResult(existing), nil
		}
	}

	var event *models.UsageEvent
	err := s.client.WithTx(ctx, func(tx *gorm.DB) error {
		movement, err := s.ledger.ConsumeInTx(ctx, tx, ledger.ConsumeInput{
			UserID:   input.UserID,
			Amount:   input.Cost,
			Reason:   enums.CreditReasonUsageCharge,
			Metadata: chargeMetadata(input.EventType, requestID),
		})
		if err != nil {
			return err
		}

		event = &models.UsageEvent{
			UserID:        input.UserID,
			EventType:     input.EventType,
			Cost:          input.Cost,
			Tokens:        input.Tokens,
			TransactionID: &movement.Transaction.ID,
			BalanceAfter:  movement.NewBalance,
			Metadata:      input.Metadata,
		}
		if requestID != "" {
			event.RequestID = &requestID
		}
		return s.repo.WithTx(tx).Create(ctx, event)
	})
	if err != nil {
		// A concurrent call with the same request id won the insert; its
		// result is the canonical one and the charge above rolled back.
		if requestID != "" && db.IsUniqueViolation(err, RequestIDConstraint) {
			existing, findErr := s.repo.FindByRequestID(ctx, input.UserID, requestID)
			if findErr != nil {
				return nil, findErr
			}
			if existing != nil {
				return s.replayResult(existing), nil
			}
		}
		if errors.HasCode(err, errors.CodeInsufficientCredits) {
			// The winner of a duplicate race may have committed between the
			// pre-check and this charge, draining the balance the loser
			// needed. The stored event is still the canonical result.
			if requestID != "" {
				existing, findErr := s.repo.FindByRequestID(ctx, input.UserID, requestID)
				if findErr == nil && existing != nil {
					return s.replayResult(existing), nil
				}
			}
			s.metrics.IncInsufficient()
		}
		return nil, err
	}

	s.metrics.AddConsumed(input.EventType, input.Cost)
	s.emitAnalytics(ctx, event)

	return &RecordResult{EventID: event.ID, NewBalance: event.BalanceAfter}, nil
}

func (s *service) replayResult(event *models.UsageEvent) *RecordResult {
	s.metrics.IncDuplicate()
	return &RecordResult{
		EventID:      event.ID,
		NewBalance:   event.BalanceAfter,
		WasDuplicate: true,
	}
}

func (s *service) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*EventsPage, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	events, err := s.repo.ListByUser(ctx, userID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, err
	}

	page := &EventsPage{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		last := page.Events[limit-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return page, nil
}

func chargeMetadata(eventType, requestID string) json.RawMessage {
	meta := map[string]string{"event_type": eventType}
	if requestID != "" {
		meta["request_id"] = requestID
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return raw
}

type analyticsRow struct {
	EventID      string    `bigquery:"event_id"`
	UserID       string    `bigquery:"user_id"`
	EventType    string    `bigquery:"event_type"`
	Cost         int64     `bigquery:"cost"`
	Tokens       int64     `bigquery:"tokens"`
	RequestID    string    `bigquery:"request_id"`
	BalanceAfter int64     `bigquery:"balance_after"`
	CreatedAt    time.Time `bigquery:"created_at"`
}

// emitAnalytics streams the committed event to the analytics sink. Failures
// are logged and never surfaced to the caller.
func (s *service) emitAnalytics(ctx context.Context, event *models.UsageEvent) {
	if s.analytics == nil || event == nil {
		return
	}

	row := analyticsRow{
		EventID:      event.ID.String(),
		UserID:       event.UserID.String(),
		EventType:    event.EventType,
		Cost:         event.Cost,
		BalanceAfter: event.BalanceAfter,
		CreatedAt:    event.CreatedAt,
	}
	if event.Tokens != nil {
		row.Tokens = *event.Tokens
	}
	if event.RequestID != nil {
		row.RequestID = *event.RequestID
	}

	if err := s.analytics.InsertUsageRows(ctx, []any{row}); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
			"event_id": event.ID.String(),
		}), "failed to stream usage event to analytics: "+err.Error())
	}
}
