package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/api/validators"
	"github.com/lumora-ai/lumora-backend/internal/usage"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

type recordUsageRequest struct {
	EventType string          `json:"eventType" validate:"required,max=100"`
	Cost      int64           `json:"cost" validate:"required,gt=0"`
	Tokens    *int64          `json:"tokens,omitempty"`
	RequestID string          `json:"requestId,omitempty" validate:"omitempty,max=200"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type recordUsageResponse struct {
	EventID      uuid.UUID `json:"eventId"`
	NewBalance   int64     `json:"newBalance"`
	WasDuplicate bool      `json:"wasDuplicate"`
}

type usageEventResponse struct {
	ID        uuid.UUID       `json:"id"`
	EventType string          `json:"eventType"`
	Cost      int64           `json:"cost"`
	Tokens    *int64          `json:"tokens,omitempty"`
	RequestID *string         `json:"requestId,omitempty"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type usageListResponse struct {
	Events     []usageEventResponse `json:"events"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

// RecordUsage charges the caller for one metered action. Replays with the
// same request id return the original result flagged as a duplicate.
func RecordUsage(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req recordUsageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Record(r.Context(), usage.RecordInput{
			UserID:    userID,
			EventType: req.EventType,
			Cost:      req.Cost,
			Tokens:    req.Tokens,
			RequestID: strings.TrimSpace(req.RequestID),
			Metadata:  req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, recordUsageResponse{
			EventID:      result.EventID,
			NewBalance:   result.NewBalance,
			WasDuplicate: result.WasDuplicate,
		})
	}
}

// ListUsage returns the caller's usage events, newest first.
func ListUsage(svc usage.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListByUser(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := usageListResponse{
			Events:     make([]usageEventResponse, 0, len(page.Events)),
			NextCursor: page.NextCursor,
		}
		for _, event := range page.Events {
			resp.Events = append(resp.Events, toUsageEventResponse(event))
		}
		responses.WriteSuccess(w, resp)
	}
}

func toUsageEventResponse(event models.UsageEvent) usageEventResponse {
	return usageEventResponse{
		ID:        event.ID,
		EventType: event.EventType,
		Cost:      event.Cost,
		Tokens:    event.Tokens,
		RequestID: event.RequestID,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	}
}
