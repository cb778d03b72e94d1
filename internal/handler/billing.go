// Package handler contains the HTTP handlers of the usage service.
//
// This file implements top-up minute purchases backed by Stripe.
//
// Routes handled:
//   - POST /api/billing/topup -> CreateTopUp
package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/hireready/internal/billing"
	"github.com/DukeRupert/hireready/internal/domain"
)

// BillingHandler handles top-up checkout requests.
type BillingHandler struct {
	billing billing.Service
	baseURL string
	logger  *slog.Logger
}

// NewBillingHandler creates a new BillingHandler.
// billingService may be nil when Stripe is not configured (development mode).
func NewBillingHandler(billingService billing.Service, baseURL string, logger *slog.Logger) *BillingHandler {
	return &BillingHandler{
		billing: billingService,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// RegisterRoutes registers billing routes on the provided mux.
func (h *BillingHandler) RegisterRoutes(mux *http.ServeMux, requireUser func(http.Handler) http.Handler) {
	mux.Handle("POST /api/billing/topup", requireUser(http.HandlerFunc(h.CreateTopUp)))
}

type topUpResponse struct {
	URL     string `json:"url"`
	Minutes int64  `json:"minutes"`
}

// CreateTopUp starts a Checkout session for one top-up pack. Credit is
// granted by the checkout.session.completed webhook, not here.
func (h *BillingHandler) CreateTopUp(w http.ResponseWriter, r *http.Request) {
	const op = "handler.billing.topup"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	if h.billing == nil {
		ErrorResponse(w, r, h.logger, domain.Errorf(domain.ENOTFOUND, op, "Top-up purchases are not available"))
		return
	}

	url, err := h.billing.CreateTopUpCheckout(billing.TopUpCheckoutParams{
		UserID:     user.ID,
		Email:      user.Email,
		SuccessURL: h.baseURL + "/billing/topup/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  h.baseURL + "/billing/topup/cancelled",
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, domain.Upstream(err, op, "Could not start checkout"))
		return
	}

	h.logger.Info("top-up checkout created", "user_id", user.ID)
	writeJSON(w, http.StatusOK, topUpResponse{URL: url, Minutes: h.billing.TopUpMinutes()})
}
