package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const usageColumns = `id, user_id, usage_type, count, period_start, period_end, created_at, updated_at`

func scanUsageRecord(row interface{ Scan(...interface{}) error }) (UsageRecord, error) {
	var i UsageRecord
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.UsageType,
		&i.Count,
		&i.PeriodStart,
		&i.PeriodEnd,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

type UsageKeyParams struct {
	UserID      uuid.UUID `json:"user_id"`
	UsageType   string    `json:"usage_type"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Creates a zero row for the period if absent and returns the current row
// without modifying an existing one.
const ensureUsageRecord = `-- name: EnsureUsageRecord :one
WITH ins AS (
    INSERT INTO usage_records (user_id, usage_type, count, period_start, period_end)
    VALUES ($1, $2, 0, $3, $4)
    ON CONFLICT (user_id, usage_type, period_start) DO NOTHING
    RETURNING ` + usageColumns + `
)
SELECT ` + usageColumns + ` FROM ins
UNION ALL
SELECT ` + usageColumns + ` FROM usage_records
WHERE user_id = $1 AND usage_type = $2 AND period_start = $3
LIMIT 1`

func (q *Queries) EnsureUsageRecord(ctx context.Context, arg UsageKeyParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, ensureUsageRecord,
		arg.UserID,
		arg.UsageType,
		arg.PeriodStart,
		arg.PeriodEnd,
	)
	return scanUsageRecord(row)
}

const getUsageRecord = `-- name: GetUsageRecord :one
SELECT ` + usageColumns + ` FROM usage_records
WHERE user_id = $1 AND usage_type = $2 AND period_start = $3`

func (q *Queries) GetUsageRecord(ctx context.Context, arg UsageKeyParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, getUsageRecord, arg.UserID, arg.UsageType, arg.PeriodStart)
	return scanUsageRecord(row)
}

const getActiveUsageRecord = `-- name: GetActiveUsageRecord :one
SELECT ` + usageColumns + ` FROM usage_records
WHERE user_id = $1 AND usage_type = $2 AND period_start <= $3 AND period_end > $3
ORDER BY period_start DESC
LIMIT 1`

type GetActiveUsageRecordParams struct {
	UserID    uuid.UUID `json:"user_id"`
	UsageType string    `json:"usage_type"`
	At        time.Time `json:"at"`
}

// GetActiveUsageRecord returns the counter whose period covers At.
func (q *Queries) GetActiveUsageRecord(ctx context.Context, arg GetActiveUsageRecordParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, getActiveUsageRecord, arg.UserID, arg.UsageType, arg.At)
	return scanUsageRecord(row)
}

const incrementUsage = `-- name: IncrementUsage :one
INSERT INTO usage_records (user_id, usage_type, count, period_start, period_end)
VALUES ($1, $2, $5, $3, $4)
ON CONFLICT (user_id, usage_type, period_start) DO UPDATE SET
    count      = usage_records.count + EXCLUDED.count,
    updated_at = NOW()
RETURNING ` + usageColumns

type IncrementUsageParams struct {
	UsageKeyParams
	Amount int64 `json:"amount"`
}

// IncrementUsage atomically adds Amount to the period counter, creating the
// row if it does not exist.
func (q *Queries) IncrementUsage(ctx context.Context, arg IncrementUsageParams) (UsageRecord, error) {
	row := q.db.QueryRowContext(ctx, incrementUsage,
		arg.UserID,
		arg.UsageType,
		arg.PeriodStart,
		arg.PeriodEnd,
		arg.Amount,
	)
	return scanUsageRecord(row)
}

const listUsageRecords = `-- name: ListUsageRecords :many
SELECT ` + usageColumns + ` FROM usage_records
WHERE user_id = $1
  AND usage_type = ANY($2::text[])
  AND period_end > $3
ORDER BY period_start DESC, usage_type`

type ListUsageRecordsParams struct {
	UserID     uuid.UUID `json:"user_id"`
	UsageTypes []string  `json:"usage_types"`
	Since      time.Time `json:"since"`
}

func (q *Queries) ListUsageRecords(ctx context.Context, arg ListUsageRecordsParams) ([]UsageRecord, error) {
	rows, err := q.db.QueryContext(ctx, listUsageRecords, arg.UserID, pq.Array(arg.UsageTypes), arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []UsageRecord
	for rows.Next() {
		i, err := scanUsageRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
