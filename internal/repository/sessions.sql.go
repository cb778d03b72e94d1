package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const sessionColumns = `id, user_id, started_at, last_heartbeat_at, ended_at, duration_seconds, duration_deducted, monthly_deducted, credit_deducted, end_reason, transcript`

func scanInterviewSession(row interface{ Scan(...interface{}) error }) (InterviewSession, error) {
	var i InterviewSession
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.StartedAt,
		&i.LastHeartbeatAt,
		&i.EndedAt,
		&i.DurationSeconds,
		&i.DurationDeducted,
		&i.MonthlyDeducted,
		&i.CreditDeducted,
		&i.EndReason,
		&i.Transcript,
	)
	return i, err
}

const createInterviewSession = `-- name: CreateInterviewSession :one
INSERT INTO interview_sessions (user_id, started_at, last_heartbeat_at)
VALUES ($1, $2, $2)
RETURNING ` + sessionColumns

type CreateInterviewSessionParams struct {
	UserID    uuid.UUID `json:"user_id"`
	StartedAt time.Time `json:"started_at"`
}

func (q *Queries) CreateInterviewSession(ctx context.Context, arg CreateInterviewSessionParams) (InterviewSession, error) {
	row := q.db.QueryRowContext(ctx, createInterviewSession, arg.UserID, arg.StartedAt)
	return scanInterviewSession(row)
}

const getInterviewSession = `-- name: GetInterviewSession :one
SELECT ` + sessionColumns + ` FROM interview_sessions WHERE id = $1`

func (q *Queries) GetInterviewSession(ctx context.Context, id uuid.UUID) (InterviewSession, error) {
	row := q.db.QueryRowContext(ctx, getInterviewSession, id)
	return scanInterviewSession(row)
}

// Ended sessions are not touched and return sql.ErrNoRows.
const touchInterviewSession = `-- name: TouchInterviewSession :one
UPDATE interview_sessions
SET last_heartbeat_at = GREATEST(last_heartbeat_at, $2)
WHERE id = $1 AND ended_at IS NULL AND duration_deducted = FALSE
RETURNING ` + sessionColumns

type TouchInterviewSessionParams struct {
	ID uuid.UUID `json:"id"`
	At time.Time `json:"at"`
}

func (q *Queries) TouchInterviewSession(ctx context.Context, arg TouchInterviewSessionParams) (InterviewSession, error) {
	row := q.db.QueryRowContext(ctx, touchInterviewSession, arg.ID, arg.At)
	return scanInterviewSession(row)
}

// The check-and-set marker for the session-end deduction. Only the first
// caller gets a row back; every later caller gets sql.ErrNoRows.
const claimSessionDeduction = `-- name: ClaimSessionDeduction :one
UPDATE interview_sessions SET
    duration_deducted = TRUE,
    ended_at          = COALESCE(ended_at, $2),
    end_reason        = CASE WHEN end_reason = '' THEN $3 ELSE end_reason END,
    duration_seconds  = GREATEST(0, CEIL(EXTRACT(EPOCH FROM (COALESCE(ended_at, $2) - started_at))))::bigint
WHERE id = $1 AND duration_deducted = FALSE
RETURNING ` + sessionColumns

type ClaimSessionDeductionParams struct {
	ID        uuid.UUID `json:"id"`
	EndedAt   time.Time `json:"ended_at"`
	EndReason string    `json:"end_reason"`
}

func (q *Queries) ClaimSessionDeduction(ctx context.Context, arg ClaimSessionDeductionParams) (InterviewSession, error) {
	row := q.db.QueryRowContext(ctx, claimSessionDeduction, arg.ID, arg.EndedAt, arg.EndReason)
	return scanInterviewSession(row)
}

const recordSessionDeduction = `-- name: RecordSessionDeduction :exec
UPDATE interview_sessions
SET monthly_deducted = $2, credit_deducted = $3
WHERE id = $1`

type RecordSessionDeductionParams struct {
	ID              uuid.UUID `json:"id"`
	MonthlyDeducted int64     `json:"monthly_deducted"`
	CreditDeducted  int64     `json:"credit_deducted"`
}

func (q *Queries) RecordSessionDeduction(ctx context.Context, arg RecordSessionDeductionParams) error {
	_, err := q.db.ExecContext(ctx, recordSessionDeduction, arg.ID, arg.MonthlyDeducted, arg.CreditDeducted)
	return err
}

const setSessionTranscript = `-- name: SetSessionTranscript :exec
UPDATE interview_sessions SET transcript = $2 WHERE id = $1`

type SetSessionTranscriptParams struct {
	ID         uuid.UUID `json:"id"`
	Transcript string    `json:"transcript"`
}

func (q *Queries) SetSessionTranscript(ctx context.Context, arg SetSessionTranscriptParams) error {
	_, err := q.db.ExecContext(ctx, setSessionTranscript, arg.ID, arg.Transcript)
	return err
}

const listStaleSessions = `-- name: ListStaleSessions :many
SELECT ` + sessionColumns + ` FROM interview_sessions
WHERE duration_deducted = FALSE AND last_heartbeat_at < $1
ORDER BY last_heartbeat_at
LIMIT $2`

type ListStaleSessionsParams struct {
	Before time.Time `json:"before"`
	Limit  int32     `json:"limit"`
}

func (q *Queries) ListStaleSessions(ctx context.Context, arg ListStaleSessionsParams) ([]InterviewSession, error) {
	rows, err := q.db.QueryContext(ctx, listStaleSessions, arg.Before, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []InterviewSession
	for rows.Next() {
		i, err := scanInterviewSession(rows)
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
