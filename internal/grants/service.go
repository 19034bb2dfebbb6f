package grants

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/ledger"
	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/pkg/enums"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

// Outcome reason codes.
const (
	ReasonGranted        = "granted"
	ReasonAlreadyGranted = "already_granted"
	ReasonNoAllotment    = "no_allotment"
	ReasonDryRun         = "dry_run"
)

var periodRe = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Service applies recurring monthly credit grants. A grant is applied at most
// once per account per period; the ledger's uniqueness constraint backs this
// even under concurrent invocations.
type Service interface {
	EnsureMonthlyGrant(ctx context.Context, userID uuid.UUID, period string) (*Outcome, error)
	RunMonthlyGrantForAll(ctx context.Context, params RunParams) ([]Outcome, error)
}

// Outcome reports what one account's grant invocation did.
type Outcome struct {
	UserID   uuid.UUID `json:"userId"`
	Granted  bool      `json:"granted"`
	Amount   int64     `json:"amount"`
	PlanCode string    `json:"planCode"`
	Reason   string    `json:"reason"`
	Error    string    `json:"error,omitempty"`
}

// RunParams bounds a batch run. Period defaults to the current UTC month;
// Limit of zero uses the configured batch limit. DryRun computes would-be
// outcomes without writing.
type RunParams struct {
	Period string
	Limit  int
	DryRun bool
}

type service struct {
	ledger     ledger.Service
	plans      plans.Service
	logg       *logger.Logger
	batchLimit int
	now        func() time.Time
}

// ServiceParams wires the grant scheduler dependencies.
type ServiceParams struct {
	Ledger     ledger.Service
	Plans      plans.Service
	Logger     *logger.Logger
	BatchLimit int
	Now        func() time.Time
}

// NewService validates dependencies and returns the grant scheduler.
func NewService(params ServiceParams) (Service, error) {
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans service required")
	}
	batchLimit := params.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 500
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		ledger:     params.Ledger,
		plans:      params.Plans,
		logg:       params.Logger,
		batchLimit: batchLimit,
		now:        now,
	}, nil
}

// CurrentPeriod formats a time as a grant period (YYYY-MM, UTC).
func CurrentPeriod(t time.Time) string {
	return t.UTC().Format("2006-01")
}

func (s *service) EnsureMonthlyGrant(ctx context.Context, userID uuid.UUID, period string) (*Outcome, error) {
	outcome, err := s.ensureGrant(ctx, userID, period, false)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (s *service) ensureGrant(ctx context.Context, userID uuid.UUID, period string, dryRun bool) (*Outcome, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if !periodRe.MatchString(period) {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid period %q (expected YYYY-MM)", period))
	}

	plan, err := s.plans.GetEffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{UserID: userID, PlanCode: plan.Code}

	if plan.MonthlyCredits <= 0 {
		outcome.Reason = ReasonNoAllotment
		return outcome, nil
	}

	exists, err := s.ledger.HasGrantForPeriod(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	if exists {
		outcome.Reason = ReasonAlreadyGranted
		return outcome, nil
	}

	if dryRun {
		outcome.Granted = true
		outcome.Amount = plan.MonthlyCredits
		outcome.Reason = ReasonDryRun
		return outcome, nil
	}

	meta, _ := json.Marshal(map[string]string{"period": period, "plan_code": plan.Code})
	_, err = s.ledger.Grant(ctx, ledger.GrantInput{
		UserID:      userID,
		Amount:      plan.MonthlyCredits,
		Reason:      enums.CreditReasonMonthlyGrant,
		GrantPeriod: &period,
		Metadata:    meta,
	})
	if err != nil {
		// A concurrent run won the insert for this period; the invariant the
		// constraint guards is already satisfied.
		if errors.HasCode(err, errors.CodeConflict) {
			outcome.Reason = ReasonAlreadyGranted
			return outcome, nil
		}
		return nil, err
	}

	outcome.Granted = true
	outcome.Amount = plan.MonthlyCredits
	outcome.Reason = ReasonGranted
	return outcome, nil
}

func (s *service) RunMonthlyGrantForAll(ctx context.Context, params RunParams) ([]Outcome, error) {
	period := params.Period
	if period == "" {
		period = CurrentPeriod(s.now())
	}
	if !periodRe.MatchString(period) {
		return nil, errors.New(errors.CodeValidation, fmt.Sprintf("invalid period %q (expected YYYY-MM)", period))
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.batchLimit
	}

	accountIDs, err := s.ledger.ListGrantCandidates(ctx, period, limit)
	if err != nil {
		return nil, err
	}

	results := make([]Outcome, 0, len(accountIDs))
	for _, userID := range accountIDs {
		outcome, err := s.ensureGrant(ctx, userID, period, params.DryRun)
		if err != nil {
			// One account's failure is reported in its entry, never aborts
			// the batch.
			if s.logg != nil {
				s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "monthly grant failed", err)
			}
			results = append(results, Outcome{UserID: userID, Reason: "error", Error: err.Error()})
			continue
		}
		results = append(results, *outcome)
	}
	return results, nil
}
