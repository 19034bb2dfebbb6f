package controllers

import (
	"io"
	"net/http"
	"net/http/httptest"

	"github.com/google/uuid"

	"github.com/lumora-ai/lumora-backend/api/middleware"
	"github.com/lumora-ai/lumora-backend/pkg/logger"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
}

func authedRequest(method, target string, body io.Reader, userID uuid.UUID) *http.Request {
	req := httptest.NewRequest(method, target, body)
	return req.WithContext(middleware.WithUserID(req.Context(), userID.String()))
}
