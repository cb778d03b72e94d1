package repository

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
)

// A session is analyzed at most once; a second insert returns sql.ErrNoRows.
const insertAnalysisResult = `-- name: InsertAnalysisResult :one
INSERT INTO analysis_results (session_id, user_id, result)
VALUES ($1, $2, $3)
ON CONFLICT (session_id) DO NOTHING
RETURNING session_id, user_id, result, created_at`

type InsertAnalysisResultParams struct {
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Result    json.RawMessage `json:"result"`
}

func (q *Queries) InsertAnalysisResult(ctx context.Context, arg InsertAnalysisResultParams) (AnalysisResult, error) {
	row := q.db.QueryRowContext(ctx, insertAnalysisResult, arg.SessionID, arg.UserID, arg.Result)
	var i AnalysisResult
	err := row.Scan(
		&i.SessionID,
		&i.UserID,
		&i.Result,
		&i.CreatedAt,
	)
	return i, err
}

const getAnalysisResult = `-- name: GetAnalysisResult :one
SELECT session_id, user_id, result, created_at FROM analysis_results WHERE session_id = $1`

func (q *Queries) GetAnalysisResult(ctx context.Context, sessionID uuid.UUID) (AnalysisResult, error) {
	row := q.db.QueryRowContext(ctx, getAnalysisResult, sessionID)
	var i AnalysisResult
	err := row.Scan(
		&i.SessionID,
		&i.UserID,
		&i.Result,
		&i.CreatedAt,
	)
	return i, err
}
