package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// CreditBalance is a user's non-expiring top-up minutes.
// Purchased - Consumed == Balance holds at all times.
type CreditBalance struct {
	UserID            uuid.UUID `json:"user_id"`
	Balance           int64     `json:"balance"`
	LifetimePurchased int64     `json:"lifetime_purchased"`
	LifetimeConsumed  int64     `json:"lifetime_consumed"`
}

// Coupon grants a fixed number of top-up minutes.
type Coupon struct {
	Code            string
	Minutes         int64
	Active          bool
	ExpiresAt       *time.Time
	MaxRedemptions  *int64
	RedemptionCount int64
}

// RedeemableAt reports why the coupon cannot be redeemed at now, or "" if it can.
func (c *Coupon) RedeemableAt(now time.Time) CouponFailure {
	if !c.Active || c.Minutes <= 0 {
		return CouponInvalid
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return CouponExpired
	}
	if c.MaxRedemptions != nil && c.RedemptionCount >= *c.MaxRedemptions {
		return CouponExhausted
	}
	return ""
}

// CouponFailure is the reason a redemption did not grant credit.
type CouponFailure string

const (
	CouponAlreadyRedeemed CouponFailure = "already_redeemed"
	CouponInvalid         CouponFailure = "invalid_code"
	CouponExpired         CouponFailure = "expired"
	CouponExhausted       CouponFailure = "exhausted"
)

// Message returns the user-facing text for a failure.
func (f CouponFailure) Message() string {
	switch f {
	case CouponAlreadyRedeemed:
		return "You have already redeemed this code."
	case CouponInvalid:
		return "This code is not valid."
	case CouponExpired:
		return "This code has expired."
	case CouponExhausted:
		return "This code has reached its redemption limit."
	}
	return ""
}

// CouponRedemptionResult is the outcome of a redemption attempt. A refused
// redemption is a result, not an error.
type CouponRedemptionResult struct {
	Success      bool          `json:"success"`
	MinutesAdded int64         `json:"minutes_added"`
	Message      string        `json:"message"`
	NewBalance   int64         `json:"new_balance"`
	Reason       CouponFailure `json:"reason,omitempty"`
}

var upper = cases.Upper(language.Und)

// NormalizeCouponCode trims and upper-cases a code so "welcome10 " and
// "WELCOME10" are the same coupon.
func NormalizeCouponCode(code string) string {
	return upper.String(strings.TrimSpace(code))
}
