package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const subscriptionColumns = `user_id, plan_key, status, current_period_start, current_period_end, source_event_at, created_at, updated_at`

func scanSubscription(row interface{ Scan(...interface{}) error }) (Subscription, error) {
	var i Subscription
	err := row.Scan(
		&i.UserID,
		&i.PlanKey,
		&i.Status,
		&i.CurrentPeriodStart,
		&i.CurrentPeriodEnd,
		&i.SourceEventAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

// Creates the default free subscription. An existing row is never touched:
// plan changes go through UpsertSubscription.
const ensureSubscription = `-- name: EnsureSubscription :exec
INSERT INTO subscriptions (user_id, plan_key, status, current_period_start, current_period_end)
VALUES ($1, 'free', 'active', $2, $3)
ON CONFLICT (user_id) DO NOTHING`

type EnsureSubscriptionParams struct {
	UserID      uuid.UUID `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

func (q *Queries) EnsureSubscription(ctx context.Context, arg EnsureSubscriptionParams) error {
	_, err := q.db.ExecContext(ctx, ensureSubscription, arg.UserID, arg.PeriodStart, arg.PeriodEnd)
	return err
}

type UpsertSubscriptionParams struct {
	UserID        uuid.UUID    `json:"user_id"`
	PlanKey       string       `json:"plan_key"`
	Status        string       `json:"status"`
	PeriodStart   time.Time    `json:"period_start"`
	PeriodEnd     time.Time    `json:"period_end"`
	SourceEventAt sql.NullTime `json:"source_event_at"`
}

const callUpsertSubscription = `-- name: CallUpsertSubscription :one
SELECT upsert_subscription($1, $2, $3, $4, $5, $6)`

// CallUpsertSubscription runs the stored procedure. It returns "ok" or
// "stale".
func (q *Queries) CallUpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (string, error) {
	row := q.db.QueryRowContext(ctx, callUpsertSubscription,
		arg.UserID,
		arg.PlanKey,
		arg.Status,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.SourceEventAt,
	)
	var result string
	err := row.Scan(&result)
	return result, err
}

// Same rule as the stored procedure, as a single statement. A stale change
// matches no row and returns sql.ErrNoRows.
const upsertSubscription = `-- name: UpsertSubscription :one
INSERT INTO subscriptions (user_id, plan_key, status, current_period_start, current_period_end, source_event_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
    plan_key             = EXCLUDED.plan_key,
    status               = EXCLUDED.status,
    current_period_start = EXCLUDED.current_period_start,
    current_period_end   = EXCLUDED.current_period_end,
    source_event_at      = COALESCE(EXCLUDED.source_event_at, subscriptions.source_event_at),
    updated_at           = NOW()
WHERE subscriptions.source_event_at IS NULL
   OR EXCLUDED.source_event_at IS NULL
   OR EXCLUDED.source_event_at >= subscriptions.source_event_at
RETURNING ` + subscriptionColumns

func (q *Queries) UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, upsertSubscription,
		arg.UserID,
		arg.PlanKey,
		arg.Status,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.SourceEventAt,
	)
	return scanSubscription(row)
}

const getSubscription = `-- name: GetSubscription :one
SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1`

func (q *Queries) GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error) {
	row := q.db.QueryRowContext(ctx, getSubscription, userID)
	return scanSubscription(row)
}
