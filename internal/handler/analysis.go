// Package handler contains the HTTP handlers of the usage service.
//
// This file implements detailed session analysis. Requests are gated on
// the monthly analysis quota and evaluated by a background job.
//
// Routes handled:
//   - POST /api/analyses             -> Request
//   - GET  /api/analyses/{sessionID} -> Show
package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/google/uuid"
)

// AnalysisHandler handles detailed analysis requests.
type AnalysisHandler struct {
	analyses service.AnalysisService
	logger   *slog.Logger
}

// NewAnalysisHandler creates a new AnalysisHandler.
func NewAnalysisHandler(analyses service.AnalysisService, logger *slog.Logger) *AnalysisHandler {
	return &AnalysisHandler{
		analyses: analyses,
		logger:   logger,
	}
}

// RegisterRoutes registers analysis routes on the provided mux.
func (h *AnalysisHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/analyses", requireUser(http.HandlerFunc(h.Request)))
	mux.Handle("GET /api/analyses/{sessionID}", requireUser(http.HandlerFunc(h.Show)))
}

type analysisRequest struct {
	SessionID string `json:"session_id"`
	Role      string `json:"role"`
}

// Request queues an analysis and answers 202 with the job ID. A session
// that was already analyzed answers 200 with the stored result.
func (h *AnalysisHandler) Request(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analysis.request"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req analysisRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "session_id", "Must be a valid session ID"))
		return
	}

	res, err := h.analyses.Request(r.Context(), user.ID, sessionID, req.Role)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	if res.Existing != nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	writeJSON(w, http.StatusAccepted, res)
}

// Show returns a finished analysis. Until the job completes it is a 404.
func (h *AnalysisHandler) Show(w http.ResponseWriter, r *http.Request) {
	const op = "handler.analysis.show"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	sessionID, err := pathUUID(r, "sessionID", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	a, err := h.analyses.Result(r.Context(), user.ID, sessionID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}
