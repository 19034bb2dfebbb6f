package grants

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/pkg/db/models"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/pagination"
)

type fakeLedger struct {
	accountIDs  []uuid.UUID
	grants      map[string]bool // userID|period
	grantFn     func(input ledger.GrantInput) (*ledger.MovementResult, error)
	grantCalls  []ledger.GrantInput
	hasGrantErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{grants: make(map[string]bool)}
}

func grantKey(userID uuid.UUID, period string) string {
	return userID.String() + "|" + period
}

func (f *fakeLedger) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeLedger) Grant(ctx context.Context, input ledger.GrantInput) (*ledger.MovementResult, error) {
	f.grantCalls = append(f.grantCalls, input)
	if f.grantFn != nil {
		return f.grantFn(input)
	}
	if input.GrantPeriod != nil {
		f.grants[grantKey(input.UserID, *input.GrantPeriod)] = true
	}
	return &ledger.MovementResult{NewBalance: input.Amount}, nil
}

func (f *fakeLedger) Consume(ctx context.Context, input ledger.ConsumeInput) (*ledger.MovementResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeLedger) ConsumeInTx(ctx context.Context, tx *gorm.DB, input ledger.ConsumeInput) (*ledger.MovementResult, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeLedger) HasGrantForPeriod(ctx context.Context, userID uuid.UUID, period string) (bool, error) {
	if f.hasGrantErr != nil {
		return false, f.hasGrantErr
	}
	return f.grants[grantKey(userID, period)], nil
}

func (f *fakeLedger) History(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ledger.HistoryPage, error) {
	return &ledger.HistoryPage{}, nil
}

func (f *fakeLedger) ListGrantCandidates(ctx context.Context, period string, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, id := range f.accountIDs {
		if f.grants[grantKey(id, period)] {
			continue
		}
		ids = append(ids, id)
		if limit > 0 && len(ids) == limit {
			break
		}
	}
	return ids, nil
}

type fakePlans struct {
	plansByUser map[uuid.UUID]plans.Plan
	err         error
}

func (f *fakePlans) GetEffectiveSubscription(ctx context.Context, userID uuid.UUID) (*models.SubscriptionRecord, error) {
	return nil, nil
}

func (f *fakePlans) GetEffectivePlanCode(ctx context.Context, userID uuid.UUID) (string, error) {
	plan, err := f.GetEffectivePlan(ctx, userID)
	return plan.Code, err
}

func (f *fakePlans) GetEffectivePlan(ctx context.Context, userID uuid.UUID) (plans.Plan, error) {
	if f.err != nil {
		return plans.Plan{}, f.err
	}
	if plan, ok := f.plansByUser[userID]; ok {
		return plan, nil
	}
	return plans.FreePlan(), nil
}

func (f *fakePlans) FeatureEnabled(ctx context.Context, userID uuid.UUID, feature string) (bool, error) {
	return false, nil
}

func (f *fakePlans) ShouldWatermark(ctx context.Context, userID uuid.UUID) (bool, error) {
	return true, nil
}

func (f *fakePlans) ListPricedPlans(ctx context.Context) ([]models.BillingPlan, error) {
	return nil, nil
}

func newGrantService(t *testing.T, fakeL *fakeLedger, fakeP *fakePlans) Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Ledger: fakeL,
		Plans:  fakeP,
		Now:    func() time.Time { return time.Date(2026, 8, 15, 12, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc
}

func starterPlan() plans.Plan {
	plan, _ := plans.PlanByCode("starter")
	return plan
}

func TestEnsureMonthlyGrantGrantsAllotment(t *testing.T) {
	fakeL := newFakeLedger()
	userID := uuid.New()
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: starterPlan()}})

	outcome, err := svc.EnsureMonthlyGrant(context.Background(), userID, "2026-08")
	if err != nil {
		t.Fatalf("EnsureMonthlyGrant error: %v", err)
	}
	if !outcome.Granted {
		t.Fatal("expected grant")
	}
	if outcome.Amount != starterPlan().MonthlyCredits {
		t.Fatalf("amount = %d, want %d", outcome.Amount, starterPlan().MonthlyCredits)
	}
	if outcome.Reason != ReasonGranted {
		t.Fatalf("reason = %q", outcome.Reason)
	}
	if len(fakeL.grantCalls) != 1 {
		t.Fatalf("expected 1 grant call, got %d", len(fakeL.grantCalls))
	}
	call := fakeL.grantCalls[0]
	if call.GrantPeriod == nil || *call.GrantPeriod != "2026-08" {
		t.Fatalf("grant period not tagged: %+v", call)
	}
}

func TestEnsureMonthlyGrantAlreadyGranted(t *testing.T) {
	fakeL := newFakeLedger()
	userID := uuid.New()
	fakeL.grants[grantKey(userID, "2026-08")] = true
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: starterPlan()}})

	outcome, err := svc.EnsureMonthlyGrant(context.Background(), userID, "2026-08")
	if err != nil {
		t.Fatalf("EnsureMonthlyGrant error: %v", err)
	}
	if outcome.Granted {
		t.Fatal("expected no grant")
	}
	if outcome.Reason != ReasonAlreadyGranted {
		t.Fatalf("reason = %q", outcome.Reason)
	}
	if len(fakeL.grantCalls) != 0 {
		t.Fatal("ledger should not be written")
	}
}

func TestEnsureMonthlyGrantRaceCollisionIsAlreadyGranted(t *testing.T) {
	fakeL := newFakeLedger()
	fakeL.grantFn = func(input ledger.GrantInput) (*ledger.MovementResult, error) {
		return nil, errors.New(errors.CodeConflict, "grant already applied for period")
	}
	userID := uuid.New()
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: starterPlan()}})

	outcome, err := svc.EnsureMonthlyGrant(context.Background(), userID, "2026-08")
	if err != nil {
		t.Fatalf("collision must not surface as error: %v", err)
	}
	if outcome.Granted || outcome.Reason != ReasonAlreadyGranted {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestEnsureMonthlyGrantNoAllotment(t *testing.T) {
	fakeL := newFakeLedger()
	userID := uuid.New()
	unlimited := plans.Plan{Code: "enterprise", MonthlyCredits: 0}
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: unlimited}})

	outcome, err := svc.EnsureMonthlyGrant(context.Background(), userID, "2026-08")
	if err != nil {
		t.Fatalf("EnsureMonthlyGrant error: %v", err)
	}
	if outcome.Granted || outcome.Reason != ReasonNoAllotment {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
}

func TestEnsureMonthlyGrantInvalidPeriod(t *testing.T) {
	svc := newGrantService(t, newFakeLedger(), &fakePlans{})

	for _, period := range []string{"", "2026", "2026-13", "08-2026", "2026-8"} {
		_, err := svc.EnsureMonthlyGrant(context.Background(), uuid.New(), period)
		if !errors.HasCode(err, errors.CodeValidation) {
			t.Fatalf("period %q: expected validation error, got %v", period, err)
		}
	}
}

func TestRunMonthlyGrantForAllIsolatesFailures(t *testing.T) {
	fakeL := newFakeLedger()
	good1, bad, good2 := uuid.New(), uuid.New(), uuid.New()
	fakeL.accountIDs = []uuid.UUID{good1, bad, good2}
	fakeL.grantFn = func(input ledger.GrantInput) (*ledger.MovementResult, error) {
		if input.UserID == bad {
			return nil, fmt.Errorf("write failed")
		}
		return &ledger.MovementResult{NewBalance: input.Amount}, nil
	}
	fakeP := &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{
		good1: starterPlan(),
		bad:   starterPlan(),
		good2: starterPlan(),
	}}
	svc := newGrantService(t, fakeL, fakeP)

	results, err := svc.RunMonthlyGrantForAll(context.Background(), RunParams{Period: "2026-08"})
	if err != nil {
		t.Fatalf("RunMonthlyGrantForAll error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}

	byUser := make(map[uuid.UUID]Outcome)
	for _, r := range results {
		byUser[r.UserID] = r
	}
	if !byUser[good1].Granted || !byUser[good2].Granted {
		t.Fatal("healthy accounts must still be granted")
	}
	if byUser[bad].Error == "" {
		t.Fatal("failing account must carry its error")
	}
}

func TestRunMonthlyGrantForAllDryRun(t *testing.T) {
	fakeL := newFakeLedger()
	userID := uuid.New()
	fakeL.accountIDs = []uuid.UUID{userID}
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: starterPlan()}})

	results, err := svc.RunMonthlyGrantForAll(context.Background(), RunParams{Period: "2026-08", DryRun: true})
	if err != nil {
		t.Fatalf("RunMonthlyGrantForAll error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Reason != ReasonDryRun || !results[0].Granted {
		t.Fatalf("unexpected outcome %+v", results[0])
	}
	if len(fakeL.grantCalls) != 0 {
		t.Fatal("dry run must not write")
	}
}

func TestRunMonthlyGrantForAllDefaultsToCurrentPeriod(t *testing.T) {
	fakeL := newFakeLedger()
	userID := uuid.New()
	fakeL.accountIDs = []uuid.UUID{userID}
	svc := newGrantService(t, fakeL, &fakePlans{plansByUser: map[uuid.UUID]plans.Plan{userID: starterPlan()}})

	_, err := svc.RunMonthlyGrantForAll(context.Background(), RunParams{})
	if err != nil {
		t.Fatalf("RunMonthlyGrantForAll error: %v", err)
	}
	if len(fakeL.grantCalls) != 1 {
		t.Fatalf("expected 1 grant call, got %d", len(fakeL.grantCalls))
	}
	if period := fakeL.grantCalls[0].GrantPeriod; period == nil || *period != "2026-08" {
		t.Fatalf("expected period 2026-08, got %v", period)
	}
}

func TestRunMonthlyGrantForAllHonorsLimit(t *testing.T) {
	fakeL := newFakeLedger()
	for i := 0; i < 5; i++ {
		fakeL.accountIDs = append(fakeL.accountIDs, uuid.New())
	}
	svc := newGrantService(t, fakeL, &fakePlans{})

	results, err := svc.RunMonthlyGrantForAll(context.Background(), RunParams{Period: "2026-08", Limit: 2})
	if err != nil {
		t.Fatalf("RunMonthlyGrantForAll error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
}

func TestRunMonthlyGrantForAllDrainsBacklogAcrossRuns(t *testing.T) {
	fakeL := newFakeLedger()
	for i := 0; i < 5; i++ {
		fakeL.accountIDs = append(fakeL.accountIDs, uuid.New())
	}
	svc := newGrantService(t, fakeL, &fakePlans{})

	granted := make(map[uuid.UUID]bool)
	for run := 0; run < 3; run++ {
		results, err := svc.RunMonthlyGrantForAll(context.Background(), RunParams{Period: "2026-08", Limit: 2})
		if err != nil {
			t.Fatalf("run %d error: %v", run, err)
		}
		for _, r := range results {
			if !r.Granted {
				t.Fatalf("run %d: unexpected outcome %+v", run, r)
			}
			if granted[r.UserID] {
				t.Fatalf("run %d: user %s granted twice", run, r.UserID)
			}
			granted[r.UserID] = true
		}
	}
	if len(granted) != 5 {
		t.Fatalf("expected all 5 accounts granted after 3 runs, got %d", len(granted))
	}
}
