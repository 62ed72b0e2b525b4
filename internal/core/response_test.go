package core

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talentsphere/internal/types"
)

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) APIErrorResponse {
	t.Helper()
	var body APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestJSONWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusCreated, APIResponse{Data: map[string]string{"id": "abc"}})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"id":"abc"}}`, rec.Body.String())
}

func TestErrorMapsAppErrorToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "validation maps to 400",
			err:        types.NewAppError(types.ErrCodeValidationInvalidJSON, "bad json", nil),
			wantStatus: http.StatusBadRequest,
			wantCode:   "validation_invalid_json",
		},
		{
			name:       "auth maps to 401",
			err:        types.NewAppError(types.ErrCodeAuthTokenMissing, "no token", nil),
			wantStatus: http.StatusUnauthorized,
			wantCode:   "auth_token_missing",
		},
		{
			name:       "not found maps to 404",
			err:        types.NewAppError(types.ErrCodeNotFoundNotification, "gone", nil),
			wantStatus: http.StatusNotFound,
			wantCode:   "not_found_notification",
		},
		{
			name:       "conflict maps to 409",
			err:        types.NewAppError(types.ErrCodeConflictSweepRunning, "busy", nil),
			wantStatus: http.StatusConflict,
			wantCode:   "conflict_sweep_already_running",
		},
		{
			name:       "upstream maps to 502",
			err:        types.NewAppError(types.ErrCodeUpstreamUnavailable, "down", nil),
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/", nil)

			Error(rec, req, tt.err)

			assert.Equal(t, tt.wantStatus, rec.Code)
			body := decodeErrorBody(t, rec)
			assert.Equal(t, tt.wantCode, body.Error.Code)
		})
	}
}

func TestErrorHidesInternalDetails(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, errors.New("pq: connection refused on 10.0.0.3"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeErrorBody(t, rec)
	assert.Equal(t, "internal_unexpected_error", body.Error.Code)
	assert.NotContains(t, rec.Body.String(), "10.0.0.3")
}

func TestErrorIncludesRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-42"))

	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundPreference, "missing", nil))

	body := decodeErrorBody(t, rec)
	assert.Equal(t, "req-42", body.Error.RequestID)
}

func TestDecodeJSON(t *testing.T) {
	type payload struct {
		Name string `json:"name"`
	}

	newReq := func(body string) (*httptest.ResponseRecorder, *http.Request) {
		return httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	}

	t.Run("valid body", func(t *testing.T) {
		rec, req := newReq(`{"name":"jane"}`)
		var p payload
		require.NoError(t, DecodeJSON(rec, req, &p))
		assert.Equal(t, "jane", p.Name)
	})

	t.Run("empty body", func(t *testing.T) {
		rec, req := newReq("")
		var p payload
		err := DecodeJSON(rec, req, &p)
		require.Error(t, err)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
		assert.Contains(t, appErr.Message, "empty")
	})

	t.Run("malformed json", func(t *testing.T) {
		rec, req := newReq(`{"name":`)
		var p payload
		err := DecodeJSON(rec, req, &p)
		require.Error(t, err)
	})

	t.Run("unknown field", func(t *testing.T) {
		rec, req := newReq(`{"name":"jane","age":30}`)
		var p payload
		err := DecodeJSON(rec, req, &p)
		require.Error(t, err)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Message, "unknown field")
	})

	t.Run("wrong type carries field details", func(t *testing.T) {
		rec, req := newReq(`{"name":7}`)
		var p payload
		err := DecodeJSON(rec, req, &p)
		require.Error(t, err)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "name", appErr.Details["field"])
	})

	t.Run("trailing values rejected", func(t *testing.T) {
		rec, req := newReq(`{"name":"jane"}{"name":"john"}`)
		var p payload
		err := DecodeJSON(rec, req, &p)
		require.Error(t, err)
		var appErr *types.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Contains(t, appErr.Message, "single JSON")
	})
}
