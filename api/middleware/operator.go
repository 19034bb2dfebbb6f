package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/lumora-ai/lumora-backend/api/responses"
	"github.com/lumora-ai/lumora-backend/pkg/config"
	pkgerrors "github.com/lumora-ai/lumora-backend/pkg/errors"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

const operatorTokenHeader = "X-Operator-Token"

// OperatorAuth guards the operator surface with a shared token. An empty
// configured token disables the surface entirely.
func OperatorAuth(cfg config.OperatorConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "operator surface disabled"))
				return
			}

			provided := strings.TrimSpace(r.Header.Get(operatorTokenHeader))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(cfg.Token)) != 1 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid operator token"))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
