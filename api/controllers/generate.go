package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/api/validators"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/internal/usage"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

const generationEventType = "image_generation"

// Credit cost per rendered image.
const (
	costStandardImage = 1
	costHDImage       = 2
)

type generateRequest struct {
	Prompt    string          `json:"prompt" validate:"required,max=2000"`
	Count     int             `json:"count,omitempty" validate:"omitempty,min=1,max=10"`
	Quality   string          `json:"quality,omitempty" validate:"omitempty,oneof=standard hd"`
	RequestID string          `json:"requestId,omitempty" validate:"omitempty,max=200"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

type generateResponse struct {
	JobID          uuid.UUID `json:"jobId"`
	CreditsCharged int64     `json:"creditsCharged"`
	NewBalance     int64     `json:"newBalance"`
	Watermark      bool      `json:"watermark"`
	WasDuplicate   bool      `json:"wasDuplicate"`
}

// Generate accepts a programmatic generation request: resolves the caller's
// plan, charges credits atomically, and reports whether output should carry
// a watermark. Rate limiting happens in middleware before this handler.
func Generate(usageSvc usage.Service, planSvc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req generateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Count == 0 {
			req.Count = 1
		}
		if req.Quality == "" {
			req.Quality = "standard"
		}

		perImage := int64(costStandardImage)
		if req.Quality == "hd" {
			enabled, err := planSvc.FeatureEnabled(r.Context(), userID, plans.FeatureHDExport)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			if !enabled {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeFeatureDisabled, "plan does not include hd export"))
				return
			}
			perImage = costHDImage
		}

		watermark, err := planSvc.ShouldWatermark(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metadata, err := generationMetadata(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cost := perImage * int64(req.Count)
		result, err := usageSvc.Record(r.Context(), usage.RecordInput{
			UserID:    userID,
			EventType: generationEventType,
			Cost:      cost,
			RequestID: strings.TrimSpace(req.RequestID),
			Metadata:  metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusAccepted, generateResponse{
			JobID:          result.EventID,
			CreditsCharged: cost,
			NewBalance:     result.NewBalance,
			Watermark:      watermark,
			WasDuplicate:   result.WasDuplicate,
		})
	}
}

func generationMetadata(req generateRequest) (json.RawMessage, error) {
	payload := map[string]any{
		"quality": req.Quality,
		"count":   req.Count,
	}
	if len(req.Metadata) > 0 {
		payload["client"] = json.RawMessage(req.Metadata)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid metadata")
	}
	return data, nil
}
