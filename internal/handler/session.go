// Package handler contains the HTTP handlers of the usage service.
//
// This file implements the interview session lifecycle. All three end paths
// (explicit end, a final heartbeat, the tab-close beacon) run the same
// exactly-once minute deduction.
//
// Routes handled:
//   - POST /api/sessions                -> Start
//   - GET  /api/sessions/{id}           -> Show
//   - POST /api/sessions/{id}/heartbeat -> Heartbeat
//   - POST /api/sessions/{id}/end       -> End
//   - POST /api/sessions/{id}/beacon    -> Beacon
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/google/uuid"
)

// SessionHandler handles interview session requests.
type SessionHandler struct {
	sessions service.SessionService
	logger   *slog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions service.SessionService, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// RegisterRoutes registers session routes on the provided mux.
func (h *SessionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/sessions", requireUser(http.HandlerFunc(h.Start)))
	mux.Handle("GET /api/sessions/{id}", requireUser(http.HandlerFunc(h.Show)))
	mux.Handle("POST /api/sessions/{id}/heartbeat", requireUser(http.HandlerFunc(h.Heartbeat)))
	mux.Handle("POST /api/sessions/{id}/end", requireUser(http.HandlerFunc(h.End)))
	mux.Handle("POST /api/sessions/{id}/beacon", requireUser(http.HandlerFunc(h.Beacon)))
}

type sessionResponse struct {
	SessionID       uuid.UUID                `json:"session_id"`
	StartedAt       time.Time                `json:"started_at"`
	LastHeartbeatAt time.Time                `json:"last_heartbeat_at"`
	EndedAt         *time.Time               `json:"ended_at,omitempty"`
	EndReason       domain.SessionEndReason  `json:"end_reason,omitempty"`
	Minutes         *domain.UsageCheckResult `json:"minutes,omitempty"`
}

func newSessionResponse(s *domain.InterviewSession, minutes *domain.UsageCheckResult) sessionResponse {
	return sessionResponse{
		SessionID:       s.ID,
		StartedAt:       s.StartedAt,
		LastHeartbeatAt: s.LastHeartbeatAt,
		EndedAt:         s.EndedAt,
		EndReason:       s.EndReason,
		Minutes:         minutes,
	}
}

// Start opens a session when both the minute and the daily interview gates
// allow it. The minutes check in the response says whether paid credit will
// be drawn.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	sess, minutes, err := h.sessions.Start(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, newSessionResponse(sess, minutes))
}

// Show returns one of the caller's sessions.
func (h *SessionHandler) Show(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.show"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	sess, err := h.sessions.Get(r.Context(), user.ID, id)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newSessionResponse(sess, nil))
}

type heartbeatRequest struct {
	Ended bool `json:"ended"`
}

type heartbeatResponse struct {
	OK        bool                    `json:"ok"`
	Deduction *domain.DeductionResult `json:"deduction,omitempty"`
}

// Heartbeat records liveness. A heartbeat with ended set doubles as the
// backup end signal.
func (h *SessionHandler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.heartbeat"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req heartbeatRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	deduction, err := h.sessions.Heartbeat(r.Context(), user.ID, id, req.Ended)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{OK: true, Deduction: deduction})
}

type endRequest struct {
	Transcript string `json:"transcript"`
}

// End closes the session and returns the deduction.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.end"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	var req endRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.sessions.End(r.Context(), service.EndSessionParams{
		UserID:     user.ID,
		SessionID:  id,
		Reason:     domain.EndReasonExplicit,
		Transcript: req.Transcript,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Beacon is the end path fired by the browser on tab close. Nobody reads
// the response, so it always answers 204 and only logs failures.
func (h *SessionHandler) Beacon(w http.ResponseWriter, r *http.Request) {
	const op = "handler.session.beacon"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}
	id, err := pathUUID(r, "id", op)
	if err != nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	res, err := h.sessions.End(r.Context(), service.EndSessionParams{
		UserID:    user.ID,
		SessionID: id,
		Reason:    domain.EndReasonBeacon,
	})
	if err != nil {
		h.logger.Warn("beacon end failed", "error", err, "user_id", user.ID, "session_id", id)
	} else {
		h.logger.Debug("beacon end",
			"session_id", id,
			"monthly_deducted", res.MonthlyDeducted,
			"credit_deducted", res.CreditDeducted,
			"already_deducted", res.AlreadyDeducted,
		)
	}
	w.WriteHeader(http.StatusNoContent)
}
