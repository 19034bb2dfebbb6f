package controllers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/api/validators"
	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

type createKeyRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

type createKeyResponse struct {
	apiKeyResponse
	// Secret is shown exactly once; only its hash is stored.
	Secret string `json:"secret"`
}

type apiKeyResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	Revoked    bool       `json:"revoked"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// CreateKey mints a new API key for the caller.
func CreateKey(svc apikeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createKeyRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), userID, req.Name)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, createKeyResponse{
			apiKeyResponse: toAPIKeyResponse(created.Key),
			Secret:         created.Secret,
		})
	}
}

// ListKeys returns the caller's keys without secret material.
func ListKeys(svc apikeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		keys, err := svc.List(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := make([]apiKeyResponse, 0, len(keys))
		for _, key := range keys {
			resp = append(resp, toAPIKeyResponse(key))
		}
		responses.WriteSuccess(w, resp)
	}
}

// RevokeKey permanently disables one of the caller's keys.
func RevokeKey(svc apikeys.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := actingUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid key id"))
			return
		}

		if err := svc.Revoke(r.Context(), userID, keyID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "revoked"})
	}
}

func toAPIKeyResponse(key models.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         key.ID,
		Name:       key.Name,
		Prefix:     key.Prefix,
		Revoked:    key.Revoked,
		LastUsedAt: key.LastUsedAt,
		CreatedAt:  key.CreatedAt,
	}
}
