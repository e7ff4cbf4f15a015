package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"neurolov_billing/internal/apperrors"
)

func handleError(t *testing.T, err error) (*httptest.ResponseRecorder, errorBody) {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	JSONErrorHandler(err, c)

	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func TestJSONErrorHandlerAppError(t *testing.T) {
	err := apperrors.New(apperrors.CodeAmountMismatch, "transferred amount does not match").
		WithDetails(map[string]interface{}{"expected": 1.5, "actual": 0.9})

	rec, body := handleError(t, err)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, body.Success)
	assert.Equal(t, apperrors.CodeAmountMismatch, body.Error.Code)
	assert.Equal(t, 1.5, body.Error.Details["expected"])
}

func TestJSONErrorHandlerStatusMapping(t *testing.T) {
	tests := []struct {
		code       apperrors.Code
		wantStatus int
	}{
		{apperrors.CodeValidation, http.StatusBadRequest},
		{apperrors.CodeDuplicateTransaction, http.StatusBadRequest},
		{apperrors.CodeUnauthorized, http.StatusUnauthorized},
		{apperrors.CodeNotFound, http.StatusNotFound},
		{apperrors.CodeChainError, http.StatusBadGateway},
		{apperrors.CodePartialReconciliation, http.StatusInternalServerError},
		{apperrors.CodeInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			rec, body := handleError(t, apperrors.New(tt.code, "boom"))
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.code, body.Error.Code)
		})
	}
}

func TestJSONErrorHandlerEchoHTTPError(t *testing.T) {
	rec, body := handleError(t, echo.NewHTTPError(http.StatusNotFound, "route not found"))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, body.Error.Code)
	assert.Equal(t, "route not found", body.Error.Message)
}

func TestJSONErrorHandlerPlainError(t *testing.T) {
	rec, body := handleError(t, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, apperrors.CodeInternal, body.Error.Code)
	// Raw driver errors must never leak to clients.
	assert.NotContains(t, body.Error.Message, "pq:")
}
