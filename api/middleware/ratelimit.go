package middleware

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/internal/ratelimit"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

// RateLimit admits requests against the caller's plan limit for the given
// scope. Denied requests still consume window budget.
func RateLimit(limiter ratelimit.Service, scope string, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := uuid.Parse(UserIDFromContext(r.Context()))
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			result, err := limiter.Admit(r.Context(), userID, scope)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			if result.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
				w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
			}

			if !result.Allowed {
				err := pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded").WithDetails(map[string]any{
					"scope":   scope,
					"limit":   result.Limit,
					"resetAt": result.ResetAt.UTC(),
				})
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
