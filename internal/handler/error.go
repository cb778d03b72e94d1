package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/domain"
)

// requestIDHeader is set on the response by the request logging middleware
// before any handler runs.
const requestIDHeader = "X-Request-ID"

var statusByCode = map[string]int{
	domain.EINVALID:         http.StatusBadRequest,
	domain.EUNAUTHORIZED:    http.StatusUnauthorized,
	domain.EQUOTA:           http.StatusPaymentRequired,
	domain.EFORBIDDEN:       http.StatusForbidden,
	domain.ENOTFOUND:        http.StatusNotFound,
	domain.ECONFLICT:        http.StatusConflict,
	domain.ERATELIMIT:       http.StatusTooManyRequests,
	domain.EINTERNAL:        http.StatusInternalServerError,
	domain.EUPSTREAM:        http.StatusBadGateway,
	domain.EUPSTREAMTIMEOUT: http.StatusGatewayTimeout,
}

// ErrorCodeToHTTPStatus maps a domain error code to a status. Unknown codes
// are server errors.
func ErrorCodeToHTTPStatus(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// ErrorResponse writes err as a JSON error body. The op and any wrapped
// cause are logged, never sent.
func ErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		ValidationErrorResponse(w, r, logger, err)
		return
	}

	code := domain.ErrorCode(err)
	status := ErrorCodeToHTTPStatus(code)
	logError(logger, r, w, err, code, status)

	// Both are worth retrying later; a limiter may already have set the exact wait.
	if (code == domain.ERATELIMIT || code == domain.EUPSTREAMTIMEOUT) && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "60")
	}

	resp := newJSONError(w, code, domain.ErrorMessage(err))
	resp.Error.Quota = domain.ErrorQuota(err)
	writeJSON(w, status, resp)
}

// ValidationErrorResponse writes field-level validation errors as a 400.
func ValidationErrorResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		ErrorResponse(w, r, logger, err)
		return
	}

	logger.Info("validation error",
		"op", ve.Op,
		"field_count", len(ve.Fields),
		"path", r.URL.Path,
		"request_id", w.Header().Get(requestIDHeader),
	)

	resp := newJSONError(w, domain.EINVALID, "Validation failed")
	resp.Error.Fields = ve.Fields
	writeJSON(w, http.StatusBadRequest, resp)
}

func UnauthorizedResponse(w http.ResponseWriter, r *http.Request, logger *slog.Logger) {
	ErrorResponse(w, r, logger, domain.Unauthorized("", "Authentication required"))
}

func logError(logger *slog.Logger, r *http.Request, w http.ResponseWriter, err error, code string, status int) {
	attrs := []any{
		"error", err.Error(),
		"code", code,
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
	}
	if op := domain.ErrorOp(err); op != "" {
		attrs = append(attrs, "op", op)
	}
	if id := w.Header().Get(requestIDHeader); id != "" {
		attrs = append(attrs, "request_id", id)
	}

	// Quota denials are routine 4xx.
	if status >= 500 {
		logger.Error("server error", attrs...)
	} else {
		logger.Info("client error", attrs...)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// JSONError is the body of every API error.
type JSONError struct {
	Error struct {
		Code      string               `json:"code"`
		Message   string               `json:"message"`
		RequestID string               `json:"request_id,omitempty"`
		Fields    map[string]string    `json:"fields,omitempty"`
		Quota     *domain.QuotaDetails `json:"quota,omitempty"`
	} `json:"error"`
}

func newJSONError(w http.ResponseWriter, code, message string) JSONError {
	var resp JSONError
	resp.Error.Code = code
	resp.Error.Message = message
	resp.Error.RequestID = w.Header().Get(requestIDHeader)
	return resp
}
