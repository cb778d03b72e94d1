// Package handler contains the HTTP handlers of the usage service.
//
// This file implements coupon redemption and operator coupon creation.
//
// Routes handled:
//   - POST /api/coupons/redeem -> Redeem
//   - POST /api/admin/coupons  -> Create (admin only)
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/service"
)

// CouponHandler handles coupon redemption.
type CouponHandler struct {
	coupons service.CouponService
	logger  *slog.Logger
}

// NewCouponHandler creates a new CouponHandler.
func NewCouponHandler(coupons service.CouponService, logger *slog.Logger) *CouponHandler {
	return &CouponHandler{
		coupons: coupons,
		logger:  logger,
	}
}

// RegisterRoutes registers coupon routes on the provided mux. requireAdmin
// wraps the operator routes and must include the user check.
func (h *CouponHandler) RegisterRoutes(
	mux *http.ServeMux,
	requireUser func(http.Handler) http.Handler,
	requireAdmin func(http.Handler) http.Handler,
) {
	mux.Handle("POST /api/coupons/redeem", requireUser(http.HandlerFunc(h.Redeem)))
	mux.Handle("POST /api/admin/coupons", requireAdmin(http.HandlerFunc(h.Create)))
}

type redeemRequest struct {
	Code string `json:"code"`
}

// Redeem grants a coupon's minutes. A refused coupon is a 200 with
// success false; only malformed input and failures are error statuses.
func (h *CouponHandler) Redeem(w http.ResponseWriter, r *http.Request) {
	const op = "handler.coupon.redeem"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req redeemRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	res, err := h.coupons.Redeem(r.Context(), user.ID, req.Code)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type createCouponRequest struct {
	Code           string     `json:"code"`
	Minutes        int64      `json:"minutes"`
	ExpiresAt      *time.Time `json:"expires_at"`
	MaxRedemptions *int64     `json:"max_redemptions"`
}

type couponResponse struct {
	Code            string     `json:"code"`
	Minutes         int64      `json:"minutes"`
	Active          bool       `json:"active"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty"`
	MaxRedemptions  *int64     `json:"max_redemptions,omitempty"`
	RedemptionCount int64      `json:"redemption_count"`
}

func newCouponResponse(c *domain.Coupon) couponResponse {
	return couponResponse{
		Code:            c.Code,
		Minutes:         c.Minutes,
		Active:          c.Active,
		ExpiresAt:       c.ExpiresAt,
		MaxRedemptions:  c.MaxRedemptions,
		RedemptionCount: c.RedemptionCount,
	}
}

// Create adds a coupon. The code is stored normalized.
func (h *CouponHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "handler.coupon.create"

	user := currentUser(w, r, h.logger)
	if user == nil {
		return
	}

	var req createCouponRequest
	if err := decodeJSON(r, op, &req); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	if req.MaxRedemptions != nil && *req.MaxRedemptions < 1 {
		ErrorResponse(w, r, h.logger, domain.NewValidationError(op, "max_redemptions", "Must be at least 1"))
		return
	}

	c, err := h.coupons.Create(r.Context(), service.CreateCouponParams{
		Code:           req.Code,
		Minutes:        req.Minutes,
		ExpiresAt:      req.ExpiresAt,
		MaxRedemptions: req.MaxRedemptions,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	h.logger.Info("coupon created",
		"code", c.Code,
		"minutes", c.Minutes,
		"created_by", user.ID,
	)
	writeJSON(w, http.StatusCreated, newCouponResponse(c))
}
