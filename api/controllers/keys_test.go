package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
)

type testKeyService struct {
	createFn func(ctx context.Context, userID uuid.UUID, name string) (*apikeys.CreatedKey, error)
	listFn   func(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error)
	revokeFn func(ctx context.Context, userID, keyID uuid.UUID) error
}

func (s *testKeyService) Create(ctx context.Context, userID uuid.UUID, name string) (*apikeys.CreatedKey, error) {
	if s.createFn != nil {
		return s.createFn(ctx, userID, name)
	}
	return &apikeys.CreatedKey{}, nil
}

func (s *testKeyService) Authenticate(context.Context, string) (*models.APIKey, error) {
	return nil, nil
}

func (s *testKeyService) List(ctx context.Context, userID uuid.UUID) ([]models.APIKey, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID)
	}
	return nil, nil
}

func (s *testKeyService) Revoke(ctx context.Context, userID, keyID uuid.UUID) error {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, userID, keyID)
	}
	return nil
}

func TestCreateKeyReturnsSecretOnce(t *testing.T) {
	userID := uuid.New()
	keyID := uuid.New()
	svc := &testKeyService{
		createFn: func(_ context.Context, uid uuid.UUID, name string) (*apikeys.CreatedKey, error) {
			if uid != userID || name != "ci pipeline" {
				t.Fatalf("unexpected create args %s %q", uid, name)
			}
			return &apikeys.CreatedKey{
				Key:    models.APIKey{ID: keyID, Name: name, Prefix: "lum_abc1"},
				Secret: "lum_abc1_supersecret",
			}, nil
		},
	}

	body := strings.NewReader(`{"name":"ci pipeline"}`)
	resp := httptest.NewRecorder()
	CreateKey(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/keys", body, userID))

	if resp.Code != http.StatusCreated {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data createKeyResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.ID != keyID || envelope.Data.Prefix != "lum_abc1" {
		t.Fatalf("unexpected key payload %+v", envelope.Data)
	}
	if envelope.Data.Secret != "lum_abc1_supersecret" {
		t.Fatalf("secret = %q", envelope.Data.Secret)
	}
}

func TestCreateKeyRequiresName(t *testing.T) {
	resp := httptest.NewRecorder()
	CreateKey(&testKeyService{}, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/keys", strings.NewReader(`{}`), uuid.New()))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestListKeysOmitsSecrets(t *testing.T) {
	userID := uuid.New()
	svc := &testKeyService{
		listFn: func(_ context.Context, uid uuid.UUID) ([]models.APIKey, error) {
			return []models.APIKey{
				{ID: uuid.New(), Name: "prod", Prefix: "lum_prod", SecretHash: "deadbeef"},
			}, nil
		},
	}

	resp := httptest.NewRecorder()
	ListKeys(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/keys", nil, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
	if strings.Contains(resp.Body.String(), "deadbeef") {
		t.Fatal("secret hash leaked into list response")
	}
}

func TestRevokeKey(t *testing.T) {
	userID := uuid.New()
	keyID := uuid.New()
	revoked := false
	svc := &testKeyService{
		revokeFn: func(_ context.Context, uid, kid uuid.UUID) error {
			if uid != userID || kid != keyID {
				t.Fatalf("unexpected revoke args %s %s", uid, kid)
			}
			revoked = true
			return nil
		},
	}

	router := chi.NewRouter()
	router.Delete("/api/v1/keys/{keyID}", RevokeKey(svc, testLogger()))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodDelete, "/api/v1/keys/"+keyID.String(), nil, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if !revoked {
		t.Fatal("revoke not invoked")
	}
}

func TestRevokeKeyRejectsBadID(t *testing.T) {
	router := chi.NewRouter()
	router.Delete("/api/v1/keys/{keyID}", RevokeKey(&testKeyService{}, testLogger()))

	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, authedRequest(http.MethodDelete, "/api/v1/keys/not-a-uuid", nil, uuid.New()))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
