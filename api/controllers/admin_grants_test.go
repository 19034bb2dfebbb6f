package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/grants"
	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
)

type testGrantService struct {
	runFn func(ctx context.Context, params grants.RunParams) ([]grants.Outcome, error)
}

func (s *testGrantService) EnsureMonthlyGrant(context.Context, uuid.UUID, string) (*grants.Outcome, error) {
	return &grants.Outcome{}, nil
}

func (s *testGrantService) RunMonthlyGrantForAll(ctx context.Context, params grants.RunParams) ([]grants.Outcome, error) {
	if s.runFn != nil {
		return s.runFn(ctx, params)
	}
	return nil, nil
}

func TestRunGrantsPassesParams(t *testing.T) {
	accountID := uuid.New()
	svc := &testGrantService{
		runFn: func(_ context.Context, params grants.RunParams) ([]grants.Outcome, error) {
			if params.Period != "2026-08" || params.Limit != 50 || !params.DryRun {
				t.Fatalf("unexpected params %+v", params)
			}
			return []grants.Outcome{
				{UserID: accountID, Granted: false, Amount: 500, PlanCode: "studio", Reason: "dry_run"},
			}, nil
		},
	}

	body := strings.NewReader(`{"period":"2026-08","limit":50,"dryRun":true}`)
	resp := httptest.NewRecorder()
	RunGrants(svc, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/grants/run", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data runGrantsResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Outcomes) != 1 || envelope.Data.Outcomes[0].UserID != accountID {
		t.Fatalf("unexpected outcomes %+v", envelope.Data.Outcomes)
	}
}

func TestRunGrantsRejectsMalformedPeriod(t *testing.T) {
	resp := httptest.NewRecorder()
	RunGrants(&testGrantService{}, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/grants/run", strings.NewReader(`{"period":"2026-8"}`)))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}

func TestManualGrantCreditsAccount(t *testing.T) {
	userID := uuid.New()
	txID := uuid.New()
	svc := &testLedgerService{
		grantFn: func(_ context.Context, input ledger.GrantInput) (*ledger.MovementResult, error) {
			if input.UserID != userID || input.Amount != 250 {
				t.Fatalf("unexpected grant input %+v", input)
			}
			if input.Reason != enums.CreditReasonManualGrant {
				t.Fatalf("reason = %q", input.Reason)
			}
			if !strings.Contains(string(input.Metadata), "goodwill refund") {
				t.Fatalf("note missing from metadata: %s", input.Metadata)
			}
			return &ledger.MovementResult{
				Transaction: &models.CreditTransaction{ID: txID},
				NewBalance:  300,
			}, nil
		},
	}

	body := strings.NewReader(`{"userId":"` + userID.String() + `","amount":250,"note":"goodwill refund"}`)
	resp := httptest.NewRecorder()
	ManualGrant(svc, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/grants/manual", body))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data manualGrantResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.TransactionID != txID || envelope.Data.NewBalance != 300 {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestManualGrantRejectsNonPositiveAmount(t *testing.T) {
	body := strings.NewReader(`{"userId":"` + uuid.NewString() + `","amount":0}`)
	resp := httptest.NewRecorder()
	ManualGrant(&testLedgerService{}, testLogger())(resp, httptest.NewRequest(http.MethodPost, "/api/admin/v1/grants/manual", body))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
}
