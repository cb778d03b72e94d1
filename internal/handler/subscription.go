// Package handler contains the HTTP handlers of the usage service.
//
// This file implements the subscription endpoints.
//
// Routes handled:
//   - GET  /api/subscription            -> Show
//   - POST /api/subscription/transition -> Transition
package handler

import (
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
)

// SubscriptionHandler serves the caller's subscription record.
type SubscriptionHandler struct {
	subscriptions service.SubscriptionService
	logger        *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(subscriptions service.SubscriptionService, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{
		subscriptions: subscriptions,
		logger:        logger,
	}
}

// RegisterRoutes registers subscription routes on the provided mux.
func (h *SubscriptionHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("GET /api/subscription", requireUser(http.HandlerFunc(h.Show)))
	mux.Handle("POST /api/subscription/transition", requireUser(http.HandlerFunc(h.Transition)))
}

// Show returns the caller's subscription and plan limits.
func (h *SubscriptionHandler) Show(w http.ResponseWriter, r *http.Request) {
	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	state, err := h.subscriptions.Get(r.Context(), user.ID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

// Transition applies the plan carried by the caller's verified token. The
// client calls it after checkout, before the provider's webhook may have
// arrived. The token's issue time orders it against webhook events, so an
// older token cannot undo a newer transition. The billing period is kept.
func (h *SubscriptionHandler) Transition(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil || principal.User == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}
	userID := principal.User.ID

	current, err := h.subscriptions.Get(r.Context(), userID)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	params := domain.TransitionParams{
		UserID:  userID,
		PlanKey: principal.TokenPlan,
	}
	if period := current.BillingPeriod(); period != nil {
		params.PeriodStart, params.PeriodEnd = &period.Start, &period.End
	}
	if !principal.TokenIssuedAt.IsZero() {
		issuedAt := principal.TokenIssuedAt.UTC()
		params.EventAt = &issuedAt
	}

	state, err := h.subscriptions.Transition(r.Context(), params)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
