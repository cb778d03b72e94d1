package repository

import (
	"context"

	"github.com/google/uuid"
)

const creditColumns = `user_id, balance, lifetime_purchased, lifetime_consumed, updated_at`

func scanCreditBalance(row interface{ Scan(...interface{}) error }) (CreditBalance, error) {
	var i CreditBalance
	err := row.Scan(
		&i.UserID,
		&i.Balance,
		&i.LifetimePurchased,
		&i.LifetimeConsumed,
		&i.UpdatedAt,
	)
	return i, err
}

const getCreditBalance = `-- name: GetCreditBalance :one
SELECT ` + creditColumns + ` FROM credit_balances WHERE user_id = $1`

func (q *Queries) GetCreditBalance(ctx context.Context, userID uuid.UUID) (CreditBalance, error) {
	row := q.db.QueryRowContext(ctx, getCreditBalance, userID)
	return scanCreditBalance(row)
}

const addCredit = `-- name: AddCredit :one
INSERT INTO credit_balances (user_id, balance, lifetime_purchased, lifetime_consumed)
VALUES ($1, $2, $2, 0)
ON CONFLICT (user_id) DO UPDATE SET
    balance            = credit_balances.balance + EXCLUDED.balance,
    lifetime_purchased = credit_balances.lifetime_purchased + EXCLUDED.lifetime_purchased,
    updated_at         = NOW()
RETURNING ` + creditColumns

type AddCreditParams struct {
	UserID  uuid.UUID `json:"user_id"`
	Minutes int64     `json:"minutes"`
}

func (q *Queries) AddCredit(ctx context.Context, arg AddCreditParams) (CreditBalance, error) {
	row := q.db.QueryRowContext(ctx, addCredit, arg.UserID, arg.Minutes)
	return scanCreditBalance(row)
}

// Takes up to $2 minutes, clamped to the balance. No row means no credit and
// returns sql.ErrNoRows.
const drawCredit = `-- name: DrawCredit :one
WITH cur AS (
    SELECT user_id, LEAST(balance, $2::bigint) AS drawn
    FROM credit_balances
    WHERE user_id = $1
    FOR UPDATE
)
UPDATE credit_balances cb SET
    balance           = cb.balance - cur.drawn,
    lifetime_consumed = cb.lifetime_consumed + cur.drawn,
    updated_at        = NOW()
FROM cur
WHERE cb.user_id = cur.user_id
RETURNING cur.drawn, cb.balance`

type DrawCreditParams struct {
	UserID  uuid.UUID `json:"user_id"`
	Minutes int64     `json:"minutes"`
}

type DrawCreditRow struct {
	Drawn   int64 `json:"drawn"`
	Balance int64 `json:"balance"`
}

func (q *Queries) DrawCredit(ctx context.Context, arg DrawCreditParams) (DrawCreditRow, error) {
	row := q.db.QueryRowContext(ctx, drawCredit, arg.UserID, arg.Minutes)
	var i DrawCreditRow
	err := row.Scan(&i.Drawn, &i.Balance)
	return i, err
}
