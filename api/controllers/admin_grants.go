package controllers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/api/validators"
	"github.com/lumora-ai/lumora-backend/internal/grants"
	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

type runGrantsRequest struct {
	Period string `json:"period,omitempty" validate:"omitempty,len=7"`
	Limit  int    `json:"limit,omitempty" validate:"omitempty,min=1,max=10000"`
	DryRun bool   `json:"dryRun,omitempty"`
}

type runGrantsResponse struct {
	Outcomes []grants.Outcome `json:"outcomes"`
}

type manualGrantRequest struct {
	UserID   string          `json:"userId" validate:"required,uuid"`
	Amount   int64           `json:"amount" validate:"required,gt=0"`
	Note     string          `json:"note,omitempty" validate:"omitempty,max=500"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type manualGrantResponse struct {
	TransactionID uuid.UUID `json:"transactionId"`
	NewBalance    int64     `json:"newBalance"`
}

// RunGrants executes the monthly grant batch for the given period.
func RunGrants(svc grants.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runGrantsRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		outcomes, err := svc.RunMonthlyGrantForAll(r.Context(), grants.RunParams{
			Period: strings.TrimSpace(req.Period),
			Limit:  req.Limit,
			DryRun: req.DryRun,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, runGrantsResponse{Outcomes: outcomes})
	}
}

// ManualGrant credits an account outside the recurring schedule.
func ManualGrant(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req manualGrantRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		metadata := req.Metadata
		if req.Note != "" {
			payload := map[string]any{"note": req.Note}
			if len(req.Metadata) > 0 {
				payload["client"] = json.RawMessage(req.Metadata)
			}
			if metadata, err = json.Marshal(payload); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}

		result, err := svc.Grant(r.Context(), ledger.GrantInput{
			UserID:   userID,
			Amount:   req.Amount,
			Reason:   enums.CreditReasonManualGrant,
			Metadata: metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, manualGrantResponse{
			TransactionID: result.Transaction.ID,
			NewBalance:    result.NewBalance,
		})
	}
}
