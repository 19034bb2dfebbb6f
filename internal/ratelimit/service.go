package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/internal/plans"
	"github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/metrics"
)

// Store is the counter backend. The production implementation is the Redis
// client; one fixed window maps to one key that expires on its own.
type Store interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitWindowKey(account, scope string, windowStart int64) string
}

// Service admits or rejects calls against fixed wall-clock windows. Rejected
// calls still count against the window: the counter reflects hits, not
// successes.
type Service interface {
	Admit(ctx context.Context, userID uuid.UUID, scope string) (*Result, error)
}

// Result reports the admit decision and window state.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type service struct {
	store   Store
	plans   plans.Service
	window  time.Duration
	metrics *metrics.LedgerMetrics
	now     func() time.Time
}

// ServiceParams wires the rate limiter dependencies. Window defaults to one
// minute; Now is overridable for tests.
type ServiceParams struct {
	Store   Store
	Plans   plans.Service
	Window  time.Duration
	Metrics *metrics.LedgerMetrics
	Now     func() time.Time
}

// NewService validates dependencies and returns the rate limiter.
func NewService(params ServiceParams) (Service, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("rate limit store required")
	}
	if params.Plans == nil {
		return nil, fmt.Errorf("plans service required")
	}
	window := params.Window
	if window <= 0 {
		window = time.Minute
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		store:   params.Store,
		plans:   params.Plans,
		window:  window,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

func (s *service) Admit(ctx context.Context, userID uuid.UUID, scope string) (*Result, error) {
	if userID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "user id is required")
	}
	if scope == "" {
		scope = plans.ScopeDefault
	}

	plan, err := s.plans.GetEffectivePlan(ctx, userID)
	if err != nil {
		return nil, err
	}

	limit := plan.LimitFor(scope)
	windowMs := s.window.Milliseconds()
	nowMs := s.now().UnixMilli()
	windowStart := nowMs - nowMs%windowMs
	resetAt := time.UnixMilli(windowStart + windowMs).UTC()

	if limit <= 0 {
		// No ceiling configured for this plan and scope.
		return &Result{Allowed: true, Limit: 0, Remaining: -1, ResetAt: resetAt}, nil
	}

	key := s.store.RateLimitWindowKey(userID.String(), scope, windowStart)
	// Keep the key around for one extra window so a late read of a just-closed
	// window still sees its count.
	count, err := s.store.IncrWithTTL(ctx, key, 2*s.window)
	if err != nil {
		return nil, errors.Wrap(errors.CodeDependency, err, "rate limit counter unavailable")
	}

	remaining := int64(limit) - count
	if remaining < 0 {
		remaining = 0
	}

	result := &Result{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: int(remaining),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		s.metrics.IncRateLimited(scope)
	}
	return result, nil
}
