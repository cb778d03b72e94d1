// Package handler contains the HTTP handlers of the usage service.
//
// This file implements client-driven identity sync. Long-lived clients call
// it on login and periodically so the local user row tracks the provider
// profile between webhooks.
//
// Routes handled:
//   - POST /api/users/sync -> Sync
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/google/uuid"
)

// UserHandler handles identity sync.
type UserHandler struct {
	identity service.IdentityService
	logger   *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(identity service.IdentityService, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		identity: identity,
		logger:   logger,
	}
}

// RegisterRoutes registers user routes on the provided mux.
func (h *UserHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/users/sync", requireUser(http.HandlerFunc(h.Sync)))
}

type syncRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	ImageURL  string `json:"image_url"`
}

type syncResponse struct {
	UserID uuid.UUID    `json:"user_id"`
	User   *domain.User `json:"user"`
}

// profile picks the richest profile variant the body supports. The
// external ID always comes from the verified token, never the body.
func (req syncRequest) profile(p *auth.Principal) domain.ExternalProfile {
	email := strings.TrimSpace(req.Email)
	if email == "" && p.User != nil {
		email = p.User.Email
	}

	hasDetails := req.FirstName != "" || req.LastName != "" || req.Username != "" || req.ImageURL != ""
	switch {
	case email != "" && hasDetails:
		return domain.FullProfile{
			ExternalID: p.ExternalID,
			Email:      email,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			Username:   req.Username,
			ImageURL:   req.ImageURL,
		}
	case email != "":
		return domain.PartialProfile{ExternalID: p.ExternalID, Email: email}
	default:
		return domain.MinimalProfile{ExternalID: p.ExternalID}
	}
}

// Sync reconciles the caller's provider profile into the local user row.
func (h *UserHandler) Sync(w http.ResponseWriter, r *http.Request) {
	const op = "handler.user.sync"

	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		UnauthorizedResponse(w, r, h.logger)
		return
	}

	var req syncRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	user, err := h.identity.Reconcile(r.Context(), req.profile(principal))
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{UserID: user.ID, User: user})
}
