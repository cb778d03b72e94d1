package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// errCouponRefused rolls back a redemption that was claimed but turned out
// not to be redeemable.
var errCouponRefused = errors.New("coupon refused")

// =============================================================================
// Interface Definition
// =============================================================================

// CouponService turns one-time codes into top-up credit.
type CouponService interface {
	// Redeem grants the coupon's minutes at most once per user and code. A
	// refusal is reported in the result, not as an error.
	Redeem(ctx context.Context, userID uuid.UUID, code string) (*domain.CouponRedemptionResult, error)

	// Create adds a coupon. Operator use.
	Create(ctx context.Context, params CreateCouponParams) (*domain.Coupon, error)
}

// CreateCouponParams are the inputs of Create.
type CreateCouponParams struct {
	Code           string
	Minutes        int64
	ExpiresAt      *time.Time
	MaxRedemptions *int64
}

// =============================================================================
// Implementation
// =============================================================================

type couponService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewCouponService creates a new CouponService.
func NewCouponService(store repository.Store, logger *slog.Logger) CouponService {
	return &couponService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *couponService) Redeem(ctx context.Context, userID uuid.UUID, code string) (*domain.CouponRedemptionResult, error) {
	const op = "coupon.redeem"

	code = domain.NormalizeCouponCode(code)
	if code == "" {
		return nil, domain.NewValidationError(op, "code", "Code is required")
	}

	now := s.now().UTC()
	var result domain.CouponRedemptionResult
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		// Row lock serializes concurrent redemptions of the same code.
		row, err := q.GetCouponForUpdate(ctx, code)
		if errors.Is(err, sql.ErrNoRows) {
			result = refused(domain.CouponInvalid, 0)
			return nil
		}
		if err != nil {
			return err
		}

		// The redemption row is the single-use marker.
		_, err = q.InsertCouponRedemption(ctx, repository.InsertCouponRedemptionParams{
			UserID:  userID,
			Code:    code,
			Minutes: row.Minutes,
		})
		if errors.Is(err, sql.ErrNoRows) {
			cb, err := creditBalance(ctx, q, userID)
			if err != nil {
				return err
			}
			result = refused(domain.CouponAlreadyRedeemed, cb.Balance)
			return errCouponRefused
		}
		if err != nil {
			return err
		}

		coupon := couponFromRow(row)
		if reason := coupon.RedeemableAt(now); reason != "" {
			cb, err := creditBalance(ctx, q, userID)
			if err != nil {
				return err
			}
			result = refused(reason, cb.Balance)
			return errCouponRefused
		}

		if err := q.IncrementCouponRedemptions(ctx, code); err != nil {
			return err
		}
		bal, err := q.AddCredit(ctx, repository.AddCreditParams{UserID: userID, Minutes: coupon.Minutes})
		if err != nil {
			return err
		}

		result = domain.CouponRedemptionResult{
			Success:      true,
			MinutesAdded: coupon.Minutes,
			Message:      "Code redeemed.",
			NewBalance:   bal.Balance,
		}
		return nil
	})
	if err != nil && !errors.Is(err, errCouponRefused) {
		metrics.CouponRedemptionsTotal.WithLabelValues("error").Inc()
		return nil, domain.Internal(err, op, "failed to redeem coupon")
	}

	if !result.Success {
		metrics.CouponRedemptionsTotal.WithLabelValues(string(result.Reason)).Inc()
		s.logger.Info("Coupon refused", "user_id", userID, "code", code, "reason", result.Reason)
		return &result, nil
	}

	metrics.CouponRedemptionsTotal.WithLabelValues("success").Inc()
	metrics.CreditGrantedMinutesTotal.WithLabelValues("coupon").Add(float64(result.MinutesAdded))
	s.logger.Info("Coupon redeemed",
		"user_id", userID,
		"code", code,
		"minutes", result.MinutesAdded,
		"balance", result.NewBalance,
	)
	return &result, nil
}

func refused(reason domain.CouponFailure, balance int64) domain.CouponRedemptionResult {
	return domain.CouponRedemptionResult{
		Message:    reason.Message(),
		NewBalance: balance,
		Reason:     reason,
	}
}

func (s *couponService) Create(ctx context.Context, params CreateCouponParams) (*domain.Coupon, error) {
	const op = "coupon.create"

	code := domain.NormalizeCouponCode(params.Code)
	if code == "" {
		return nil, domain.NewValidationError(op, "code", "Code is required")
	}
	if params.Minutes <= 0 {
		return nil, domain.NewValidationError(op, "minutes", "Minutes must be positive")
	}

	arg := repository.CreateCouponParams{
		Code:      code,
		Minutes:   params.Minutes,
		Active:    true,
		ExpiresAt: nullTime(params.ExpiresAt),
	}
	if params.MaxRedemptions != nil {
		arg.MaxRedemptions = sql.NullInt64{Int64: *params.MaxRedemptions, Valid: true}
	}

	row, err := s.store.CreateCoupon(ctx, arg)
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.Conflict(op, "A coupon with this code already exists")
		}
		return nil, domain.Internal(err, op, "failed to create coupon")
	}
	c := couponFromRow(row)
	return &c, nil
}
