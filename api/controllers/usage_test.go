package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/usage"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

type testUsageService struct {
	recordFn func(ctx context.Context, input usage.RecordInput) (*usage.RecordResult, error)
	listFn   func(ctx context.Context, userID uuid.UUID, params pagination.Params) (*usage.EventsPage, error)
}

func (s *testUsageService) Record(ctx context.Context, input usage.RecordInput) (*usage.RecordResult, error) {
	if s.recordFn != nil {
		return s.recordFn(ctx, input)
	}
	return &usage.RecordResult{EventID: uuid.New()}, nil
}

func (s *testUsageService) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) (*usage.EventsPage, error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, params)
	}
	return &usage.EventsPage{}, nil
}

func TestRecordUsageSuccess(t *testing.T) {
	userID := uuid.New()
	eventID := uuid.New()
	svc := &testUsageService{
		recordFn: func(_ context.Context, input usage.RecordInput) (*usage.RecordResult, error) {
			if input.UserID != userID {
				t.Fatalf("unexpected user %s", input.UserID)
			}
			if input.EventType != "image_generation" || input.Cost != 3 {
				t.Fatalf("unexpected input %+v", input)
			}
			if input.RequestID != "req-1" {
				t.Fatalf("request id = %q", input.RequestID)
			}
			return &usage.RecordResult{EventID: eventID, NewBalance: 7}, nil
		},
	}

	body := strings.NewReader(`{"eventType":"image_generation","cost":3,"requestId":"req-1"}`)
	resp := httptest.NewRecorder()
	RecordUsage(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/usage", body, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	var envelope struct {
		Data recordUsageResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.EventID != eventID || envelope.Data.NewBalance != 7 || envelope.Data.WasDuplicate {
		t.Fatalf("unexpected payload %+v", envelope.Data)
	}
}

func TestRecordUsageDuplicateFlagSurfaces(t *testing.T) {
	svc := &testUsageService{
		recordFn: func(context.Context, usage.RecordInput) (*usage.RecordResult, error) {
			return &usage.RecordResult{EventID: uuid.New(), NewBalance: 4, WasDuplicate: true}, nil
		},
	}

	body := strings.NewReader(`{"eventType":"image_generation","cost":1,"requestId":"req-1"}`)
	resp := httptest.NewRecorder()
	RecordUsage(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/usage", body, uuid.New()))

	if resp.Code != http.StatusOK {
		t.Fatalf("replay must be a success, got %d", resp.Code)
	}
	var envelope struct {
		Data recordUsageResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !envelope.Data.WasDuplicate {
		t.Fatal("expected wasDuplicate flag")
	}
}

func TestRecordUsageInsufficientCredits(t *testing.T) {
	svc := &testUsageService{
		recordFn: func(context.Context, usage.RecordInput) (*usage.RecordResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodeInsufficientCredits, "insufficient credits")
		},
	}

	body := strings.NewReader(`{"eventType":"image_generation","cost":100}`)
	resp := httptest.NewRecorder()
	RecordUsage(svc, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/usage", body, uuid.New()))

	if resp.Code != http.StatusPaymentRequired {
		t.Fatalf("expected 402 got %d", resp.Code)
	}
}

func TestRecordUsageValidation(t *testing.T) {
	cases := map[string]string{
		"missing event type": `{"cost":3}`,
		"zero cost":          `{"eventType":"image_generation","cost":0}`,
		"negative cost":      `{"eventType":"image_generation","cost":-2}`,
		"unknown field":      `{"eventType":"image_generation","cost":1,"nope":true}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp := httptest.NewRecorder()
			RecordUsage(&testUsageService{}, testLogger())(resp, authedRequest(http.MethodPost, "/api/v1/usage", strings.NewReader(payload), uuid.New()))
			if resp.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d", resp.Code)
			}
		})
	}
}

func TestListUsageSuccess(t *testing.T) {
	userID := uuid.New()
	svc := &testUsageService{
		listFn: func(_ context.Context, uid uuid.UUID, _ pagination.Params) (*usage.EventsPage, error) {
			if uid != userID {
				t.Fatalf("unexpected user %s", uid)
			}
			return &usage.EventsPage{NextCursor: "more"}, nil
		},
	}

	resp := httptest.NewRecorder()
	ListUsage(svc, testLogger())(resp, authedRequest(http.MethodGet, "/api/v1/usage", nil, userID))

	if resp.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", resp.Code)
	}
}
