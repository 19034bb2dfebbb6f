package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/lumora-ai/lumora-backend/internal/grants"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

// MonthlyGrantJobParams configures the recurring credit grant job.
type MonthlyGrantJobParams struct {
	Logger     *logger.Logger
	Grants     grants.Service
	BatchLimit int
	Now        func() time.Time
}

// NewMonthlyGrantJob constructs the job that applies each account's monthly
// credit allotment for the current period.
func NewMonthlyGrantJob(params MonthlyGrantJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Grants == nil {
		return nil, fmt.Errorf("grants service required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &monthlyGrantJob{
		logg:       params.Logger,
		grants:     params.Grants,
		batchLimit: params.BatchLimit,
		now:        now,
	}, nil
}

type monthlyGrantJob struct {
	logg       *logger.Logger
	grants     grants.Service
	batchLimit int
	now        func() time.Time
}

func (j *monthlyGrantJob) Name() string { return "monthly-grant" }

func (j *monthlyGrantJob) Run(ctx context.Context) error {
	period := grants.CurrentPeriod(j.now())

	outcomes, err := j.grants.RunMonthlyGrantForAll(ctx, grants.RunParams{
		Period: period,
		Limit:  j.batchLimit,
	})
	if err != nil {
		return fmt.Errorf("monthly grant run for %s: %w", period, err)
	}

	var granted, skipped int
	var errs []error
	for _, outcome := range outcomes {
		switch {
		case outcome.Error != "":
			errs = append(errs, fmt.Errorf("account %s: %s", outcome.UserID, outcome.Error))
		case outcome.Granted:
			granted++
		default:
			skipped++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"period":  period,
		"granted": granted,
		"skipped": skipped,
		"failed":  len(errs),
	})
	j.logg.Info(logCtx, "monthly grant cycle complete")

	return multierr.Combine(errs...)
}
