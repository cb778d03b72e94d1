package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const couponColumns = `code, minutes, active, expires_at, max_redemptions, redemption_count, created_at`

func scanCoupon(row interface{ Scan(...interface{}) error }) (Coupon, error) {
	var i Coupon
	err := row.Scan(
		&i.Code,
		&i.Minutes,
		&i.Active,
		&i.ExpiresAt,
		&i.MaxRedemptions,
		&i.RedemptionCount,
		&i.CreatedAt,
	)
	return i, err
}

const createCoupon = `-- name: CreateCoupon :one
INSERT INTO coupons (code, minutes, active, expires_at, max_redemptions)
VALUES ($1, $2, $3, $4, $5)
RETURNING ` + couponColumns

type CreateCouponParams struct {
	Code           string        `json:"code"`
	Minutes        int64         `json:"minutes"`
	Active         bool          `json:"active"`
	ExpiresAt      sql.NullTime  `json:"expires_at"`
	MaxRedemptions sql.NullInt64 `json:"max_redemptions"`
}

func (q *Queries) CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error) {
	row := q.db.QueryRowContext(ctx, createCoupon,
		arg.Code,
		arg.Minutes,
		arg.Active,
		arg.ExpiresAt,
		arg.MaxRedemptions,
	)
	return scanCoupon(row)
}

const getCouponForUpdate = `-- name: GetCouponForUpdate :one
SELECT ` + couponColumns + ` FROM coupons WHERE code = $1 FOR UPDATE`

func (q *Queries) GetCouponForUpdate(ctx context.Context, code string) (Coupon, error) {
	row := q.db.QueryRowContext(ctx, getCouponForUpdate, code)
	return scanCoupon(row)
}

// A second redemption by the same user conflicts and returns sql.ErrNoRows.
const insertCouponRedemption = `-- name: InsertCouponRedemption :one
INSERT INTO coupon_redemptions (user_id, code, minutes)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, code) DO NOTHING
RETURNING user_id, code, minutes, redeemed_at`

type InsertCouponRedemptionParams struct {
	UserID  uuid.UUID `json:"user_id"`
	Code    string    `json:"code"`
	Minutes int64     `json:"minutes"`
}

func (q *Queries) InsertCouponRedemption(ctx context.Context, arg InsertCouponRedemptionParams) (CouponRedemption, error) {
	row := q.db.QueryRowContext(ctx, insertCouponRedemption, arg.UserID, arg.Code, arg.Minutes)
	var i CouponRedemption
	err := row.Scan(
		&i.UserID,
		&i.Code,
		&i.Minutes,
		&i.RedeemedAt,
	)
	return i, err
}

const incrementCouponRedemptions = `-- name: IncrementCouponRedemptions :exec
UPDATE coupons SET redemption_count = redemption_count + 1 WHERE code = $1`

func (q *Queries) IncrementCouponRedemptions(ctx context.Context, code string) error {
	_, err := q.db.ExecContext(ctx, incrementCouponRedemptions, code)
	return err
}
