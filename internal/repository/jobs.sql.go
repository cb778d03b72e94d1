package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const jobColumns = `id, job_type, payload, status, attempts, max_attempts, priority, scheduled_at, started_at, completed_at, error_message, created_at, dedupe_key`

func scanJob(row interface{ Scan(...interface{}) error }) (Job, error) {
	var i Job
	err := row.Scan(
		&i.ID,
		&i.JobType,
		&i.Payload,
		&i.Status,
		&i.Attempts,
		&i.MaxAttempts,
		&i.Priority,
		&i.ScheduledAt,
		&i.StartedAt,
		&i.CompletedAt,
		&i.ErrorMessage,
		&i.CreatedAt,
		&i.DedupeKey,
	)
	return i, err
}

const enqueueJob = `-- name: EnqueueJob :one
INSERT INTO jobs (job_type, payload, priority, max_attempts, scheduled_at, dedupe_key)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING ` + jobColumns

type EnqueueJobParams struct {
	JobType     string          `json:"job_type"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int32           `json:"priority"`
	MaxAttempts int32           `json:"max_attempts"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	DedupeKey   sql.NullString  `json:"dedupe_key"`
}

func (q *Queries) EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error) {
	row := q.db.QueryRowContext(ctx, enqueueJob,
		arg.JobType,
		arg.Payload,
		arg.Priority,
		arg.MaxAttempts,
		arg.ScheduledAt,
		arg.DedupeKey,
	)
	return scanJob(row)
}

const getActiveJobByDedupeKey = `-- name: GetActiveJobByDedupeKey :one
SELECT ` + jobColumns + ` FROM jobs
WHERE dedupe_key = $1 AND status IN ('pending', 'running')`

func (q *Queries) GetActiveJobByDedupeKey(ctx context.Context, dedupeKey string) (Job, error) {
	row := q.db.QueryRowContext(ctx, getActiveJobByDedupeKey, dedupeKey)
	return scanJob(row)
}

const dequeueJob = `-- name: DequeueJob :one
SELECT ` + jobColumns + ` FROM jobs
WHERE status = 'pending' AND scheduled_at <= NOW()
ORDER BY priority DESC, scheduled_at
LIMIT 1
FOR UPDATE SKIP LOCKED`

func (q *Queries) DequeueJob(ctx context.Context) (Job, error) {
	row := q.db.QueryRowContext(ctx, dequeueJob)
	return scanJob(row)
}

const updateJobStarted = `-- name: UpdateJobStarted :exec
UPDATE jobs SET status = 'running', started_at = NOW(), attempts = attempts + 1
WHERE id = $1`

func (q *Queries) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobStarted, id)
	return err
}

const updateJobCompleted = `-- name: UpdateJobCompleted :exec
UPDATE jobs SET status = 'completed', completed_at = NOW(), error_message = NULL
WHERE id = $1`

func (q *Queries) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, updateJobCompleted, id)
	return err
}

// Retryable failures go back to pending with exponential backoff until
// max_attempts is reached.
const updateJobFailed = `-- name: UpdateJobFailed :exec
UPDATE jobs SET
    status        = CASE WHEN $3::boolean OR attempts >= max_attempts THEN 'failed' ELSE 'pending' END,
    error_message = $2,
    scheduled_at  = NOW() + (POWER(2, attempts) * INTERVAL '30 seconds'),
    completed_at  = CASE WHEN $3::boolean OR attempts >= max_attempts THEN NOW() ELSE NULL END
WHERE id = $1`

type UpdateJobFailedParams struct {
	ID           uuid.UUID      `json:"id"`
	ErrorMessage sql.NullString `json:"error_message"`
	Permanent    bool           `json:"permanent"`
}

func (q *Queries) UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error {
	_, err := q.db.ExecContext(ctx, updateJobFailed, arg.ID, arg.ErrorMessage, arg.Permanent)
	return err
}

const recoverStaleJobs = `-- name: RecoverStaleJobs :execrows
UPDATE jobs SET status = 'pending', started_at = NULL
WHERE status = 'running'
  AND started_at < NOW() - make_interval(secs => $1)`

func (q *Queries) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	result, err := q.db.ExecContext(ctx, recoverStaleJobs, thresholdSeconds)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
