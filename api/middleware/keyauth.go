package middleware

import (
	"net/http"
	"strings"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/internal/apikeys"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

const apiKeyHeader = "X-API-Key"

// KeyAuth authenticates programmatic requests by API key secret. The key
// owner becomes the acting user for downstream handlers.
func KeyAuth(keys apikeys.Service, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			secret := strings.TrimSpace(r.Header.Get(apiKeyHeader))
			if secret == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing api key"))
				return
			}

			key, err := keys.Authenticate(r.Context(), secret)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithUserID(r.Context(), key.UserID.String())
			ctx = WithAPIKeyID(ctx, key.ID.String())
			if logg != nil {
				ctx = logg.WithUserID(ctx, key.UserID.String())
				ctx = logg.WithAPIKeyID(ctx, key.ID.String())
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
