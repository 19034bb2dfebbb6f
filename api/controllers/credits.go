package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/middleware"
	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/api/validators"
	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

type balanceResponse struct {
	Balance int64 `json:"balance"`
}

type transactionResponse struct {
	ID          uuid.UUID       `json:"id"`
	Delta       int64           `json:"delta"`
	Reason      string          `json:"reason"`
	GrantPeriod *string         `json:"grantPeriod,omitempty"`
	Metadata    json.RawMessage `json:"metadata,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

type historyResponse struct {
	Transactions []transactionResponse `json:"transactions"`
	NextCursor   string                `json:"nextCursor,omitempty"`
}

// GetBalance returns the caller's current credit balance.
func GetBalance(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		balance, err := svc.GetBalance(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, balanceResponse{Balance: balance})
	}
}

// GetHistory returns the caller's ledger entries, newest first.
func GetHistory(svc ledger.Service, logg *logger.Logger) http.HandlerFunc {
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

		page, err := svc.History(r.Context(), userID, pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := historyResponse{
			Transactions: make([]transactionResponse, 0, len(page.Transactions)),
			NextCursor:   page.NextCursor,
		}
		for _, tx := range page.Transactions {
			resp.Transactions = append(resp.Transactions, toTransactionResponse(tx))
		}
		responses.WriteSuccess(w, resp)
	}
}

func toTransactionResponse(tx models.CreditTransaction) transactionResponse {
	return transactionResponse{
		ID:          tx.ID,
		Delta:       tx.Delta,
		Reason:      string(tx.Reason),
		GrantPeriod: tx.GrantPeriod,
		Metadata:    tx.Metadata,
		CreatedAt:   tx.CreatedAt,
	}
}

func actingUserID(r *http.Request) (uuid.UUID, error) {
	raw := middleware.UserIDFromContext(r.Context())
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	return userID, nil
}
