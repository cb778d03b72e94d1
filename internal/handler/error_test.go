package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) JSONError {
	t.Helper()
	var body JSONError
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{domain.EINVALID, http.StatusBadRequest},
		{domain.EUNAUTHORIZED, http.StatusUnauthorized},
		{domain.EQUOTA, http.StatusPaymentRequired},
		{domain.EFORBIDDEN, http.StatusForbidden},
		{domain.ENOTFOUND, http.StatusNotFound},
		{domain.ECONFLICT, http.StatusConflict},
		{domain.ERATELIMIT, http.StatusTooManyRequests},
		{domain.EINTERNAL, http.StatusInternalServerError},
		{domain.EUPSTREAM, http.StatusBadGateway},
		{domain.EUPSTREAMTIMEOUT, http.StatusGatewayTimeout},
		{"something_else", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, ErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestErrorResponse_QuotaExceededCarriesNumbers(t *testing.T) {
	err := domain.QuotaExceeded("session.start", domain.UsageMinutes, 2, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), err)

	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeError(t, rec)
	assert.Equal(t, domain.EQUOTA, body.Error.Code)
	require.NotNil(t, body.Error.Quota)
	assert.Equal(t, domain.UsageMinutes, body.Error.Quota.UsageType)
	assert.Equal(t, int64(2), body.Error.Quota.Current)
	assert.Equal(t, int64(2), body.Error.Quota.Limit)
	assert.Equal(t, int64(0), body.Error.Quota.Remaining)
}

func TestErrorResponse_DoesNotExposeInternals(t *testing.T) {
	err := domain.Internal(errors.New("pq: relation \"usage_records\" does not exist"), "usage.check", "failed to load usage")

	req := httptest.NewRequest(http.MethodPost, "/api/usage/check", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), err)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := rec.Body.String()
	assert.NotContains(t, body, "usage_records")
	assert.NotContains(t, body, "usage.check")
	assert.Contains(t, body, "internal error")
}

func TestErrorResponse_UpstreamStatuses(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"upstream", domain.Upstream(errors.New("503"), "analysis.evaluate", "Evaluation failed"), http.StatusBadGateway},
		{"timeout", domain.UpstreamTimeout(errors.New("deadline"), "analysis.evaluate", "Evaluation timed out"), http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/analyses", nil)
			rec := httptest.NewRecorder()
			ErrorResponse(rec, req, discardLogger(), tt.err)
			assert.Equal(t, tt.want, rec.Code)
			assert.Nil(t, decodeError(t, rec).Error.Quota)
		})
	}
}

func TestErrorResponse_RateLimitSetsRetryAfter(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/usage", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), domain.RateLimit("api"))

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestValidationErrorResponse_DoesNotExposeOperationName(t *testing.T) {
	ve := domain.NewValidationError("CouponService.Redeem", "code", "Coupon code is required")

	req := httptest.NewRequest(http.MethodPost, "/api/coupons/redeem", nil)
	rec := httptest.NewRecorder()
	ValidationErrorResponse(rec, req, discardLogger(), ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "CouponService")

	body := decodeError(t, rec)
	assert.Equal(t, domain.EINVALID, body.Error.Code)
	assert.Equal(t, "Coupon code is required", body.Error.Fields["code"])
}

func TestErrorResponse_RoutesValidationErrors(t *testing.T) {
	ve := domain.NewValidationError("usage.check", "amount", "Amount must not be negative")

	req := httptest.NewRequest(http.MethodPost, "/api/usage/check", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), ve)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "amount")
}

func TestErrorResponse_UpstreamTimeoutIsRetryable(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/analyses", nil)
	rec := httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), domain.UpstreamTimeout(errors.New("deadline"), "analysis.evaluate", "Evaluation timed out"))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
}

func TestErrorResponse_EchoesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/coupons/redeem", nil)
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Request-ID", "req-42")

	ErrorResponse(rec, req, discardLogger(), domain.Conflict("coupon.create", "A coupon with this code already exists"))

	body := decodeError(t, rec)
	assert.Equal(t, domain.ECONFLICT, body.Error.Code)
	assert.Equal(t, "req-42", body.Error.RequestID)

	rec = httptest.NewRecorder()
	ErrorResponse(rec, req, discardLogger(), domain.Conflict("coupon.create", "A coupon with this code already exists"))
	assert.NotContains(t, rec.Body.String(), "request_id")
}
