// Package handler contains the HTTP handlers of the usage service.
//
// This file implements the quota gate and usage bookkeeping endpoints.
//
// Routes handled:
//   - GET  /api/usage       -> Summary
//   - POST /api/usage/check -> Check
//   - POST /api/usage/track -> Track
//   - GET  /api/usage/history -> History
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
)

// UsageHandler serves the quota gate and usage bookkeeping endpoints.
type UsageHandler struct {
	usage  service.UsageService
	logger *slog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(usage service.UsageService, logger *slog.Logger) *UsageHandler {
	return &UsageHandler{
		usage:  usage,
		logger: logger,
	}
}

// RegisterRoutes registers usage routes on the provided mux.
func (h *UsageHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/usage", requireUser(http.HandlerFunc(h.Summary)))
	mux.Handle("POST /api/usage/check", requireUser(http.HandlerFunc(h.Check)))
	mux.Handle("POST /api/usage/track", requireUser(http.HandlerFunc(h.Track)))
	mux.Handle("GET /api/usage/history", requireUser(http.HandlerFunc(h.History)))
}

const (
	defaultHistoryMonths = 3
	maxHistoryMonths     = 24
)

type usageRequest struct {
	UsageType string `json:"usage_type"`
	Amount    *int64 `json:"amount"`
}

// parse validates the body. A missing amount means one unit.
func (req usageRequest) parse(op string) (domain.UsageType, int64, error) {
	t, err := domain.ParseUsageType(req.UsageType)
	if err != nil {
		return "", 0, domain.NewValidationError(op, "usage_type", "Unknown usage type")
	}
	amount := int64(1)
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount < 0 {
		return "", 0, domain.NewValidationError(op, "amount", "Amount must not be negative")
	}
	return t, amount, nil
}

// Summary returns the caller's standing on every usage type.
func (h *UsageHandler) Summary(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	summary, err := h.usage.Summary(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Check answers whether the caller may consume amount units. It never
// changes a count.
func (h *UsageHandler) Check(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.check"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req usageRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	usageType, amount, err := req.parse(op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.usage.Check(r.Context(), user.ID, usageType, amount)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type trackResponse struct {
	Tracked bool                `json:"tracked"`
	Record  *domain.UsageRecord `json:"record,omitempty"`
	Warning string              `json:"warning,omitempty"`
}

// Track records usage after a gated action completed. The action has
// already happened, so a failure to record it is reported as a warning
// rather than an error status.
func (h *UsageHandler) Track(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.track"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req usageRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	usageType, amount, err := req.parse(op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	rec, err := h.usage.Track(r.Context(), user.ID, usageType, amount)
	if err != nil {
		h.logger.Warn("usage tracking failed after grant",
			"error", err,
			"user_id", user.ID,
			"usage_type", usageType,
			"amount", amount,
		)
		writeJSON(w, http.StatusOK, trackResponse{
			Tracked: false,
			Warning: "Usage could not be recorded. Your action was not affected.",
		})
		return
	}
	writeJSON(w, http.StatusOK, trackResponse{Tracked: true, Record: rec})
}

type historyResponse struct {
	Since   time.Time            `json:"since"`
	Records []domain.UsageRecord `json:"records"`
}

// History lists the caller's counters for the last ?months=N months
// (default 3, at most 24).
func (h *UsageHandler) History(w http.ResponseWriter, r *http.Request) {
	const op = "handler.usage.history"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	months := defaultHistoryMonths
	if raw := r.URL.Query().Get("months"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryMonths {
			ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "months", "Months must be between 1 and 24"))
			return
		}
		months = n
	}

	since := time.Now().UTC().AddDate(0, -months, 0)
	records, err := h.usage.History(r.Context(), user.ID, since)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{Since: since, Records: records})
}
