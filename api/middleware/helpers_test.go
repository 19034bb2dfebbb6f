package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

// passthrough records whether the wrapped handler ran and with what context.
type passthrough struct {
	called bool
	userID string
	keyID  string
}

func (p *passthrough) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p.called = true
		p.userID = UserIDFromContext(r.Context())
		p.keyID = APIKeyIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}
