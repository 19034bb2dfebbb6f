package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
)

type fakeKeyService struct {
	authenticateFn func(ctx context.Context, secret string) (*models.APIKey, error)
}

func (f *fakeKeyService) Create(context.Context, uuid.UUID, string) (*apikeys.CreatedKey, error) {
	return nil, nil
}

func (f *fakeKeyService) Authenticate(ctx context.Context, secret string) (*models.APIKey, error) {
	return f.authenticateFn(ctx, secret)
}

func (f *fakeKeyService) List(context.Context, uuid.UUID) ([]models.APIKey, error) {
	return nil, nil
}

func (f *fakeKeyService) Revoke(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

func TestKeyAuthSeedsActingUser(t *testing.T) {
	userID := uuid.New()
	keyID := uuid.New()
	svc := &fakeKeyService{
		authenticateFn: func(_ context.Context, secret string) (*models.APIKey, error) {
			if secret != "lum_live_secret" {
				t.Fatalf("secret = %q", secret)
			}
			return &models.APIKey{ID: keyID, UserID: userID}, nil
		},
	}

	next := &passthrough{}
	req := httptest.NewRequest(http.MethodGet, "/api/ext/v1/balance", nil)
	req.Header.Set(apiKeyHeader, "lum_live_secret")

	resp := serve(KeyAuth(svc, testLogger())(next.handler()), req)

	if resp.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	if next.userID != userID.String() || next.keyID != keyID.String() {
		t.Fatalf("context user %q key %q", next.userID, next.keyID)
	}
}

func TestKeyAuthRejectsMissingKey(t *testing.T) {
	svc := &fakeKeyService{
		authenticateFn: func(context.Context, string) (*models.APIKey, error) {
			t.Fatal("authenticate must not be called without a key")
			return nil, nil
		},
	}

	next := &passthrough{}
	resp := serve(KeyAuth(svc, testLogger())(next.handler()), httptest.NewRequest(http.MethodGet, "/api/ext/v1/balance", nil))

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
	if next.called {
		t.Fatal("handler must not run without a key")
	}
}

func TestKeyAuthPropagatesDisabledAccess(t *testing.T) {
	svc := &fakeKeyService{
		authenticateFn: func(context.Context, string) (*models.APIKey, error) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "api access not included in plan")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ext/v1/balance", nil)
	req.Header.Set(apiKeyHeader, "lum_free_secret")

	resp := serve(KeyAuth(svc, testLogger())((&passthrough{}).handler()), req)

	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", resp.Code)
	}
}

func TestKeyAuthPropagatesUnknownKey(t *testing.T) {
	svc := &fakeKeyService{
		authenticateFn: func(context.Context, string) (*models.APIKey, error) {
			return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid api key")
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/ext/v1/balance", nil)
	req.Header.Set(apiKeyHeader, "lum_bogus")

	resp := serve(KeyAuth(svc, testLogger())((&passthrough{}).handler()), req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}
