package worker

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// JobTypeEvaluateSession runs the detailed analysis of an ended interview.
const JobTypeEvaluateSession = "evaluate_session"

// Queue priorities. Higher runs first.
const (
	PriorityLow    int32 = 0
	PriorityNormal int32 = 10
	PriorityHigh   int32 = 20
)

const defaultMaxAttempts = 3

// ErrJobActive is returned with the existing job when a live job already
// holds the requested dedupe key.
var ErrJobActive = errors.New("job already queued")

// EvaluateSessionPayload is the payload of an evaluate_session job.
type EvaluateSessionPayload struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	Role      string    `json:"role,omitempty"`
}

// EnqueueOption adjusts a job before it is inserted.
type EnqueueOption func(*repository.EnqueueJobParams)

func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithDedupeKey allows only one pending or running job per key.
func WithDedupeKey(key string) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.DedupeKey = sql.NullString{String: key, Valid: key != ""}
	}
}

// EvaluateSessionDedupeKey is the dedupe key of a session's analysis job.
func EvaluateSessionDedupeKey(sessionID uuid.UUID) string {
	return JobTypeEvaluateSession + ":" + sessionID.String()
}

// EnqueueJob inserts a job of jobType with payload encoded as JSON. Run it
// on a transaction's Querier to make the job visible only on commit.
func EnqueueJob(ctx context.Context, q repository.Querier, jobType string, payload any, opts ...EnqueueOption) (repository.Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal %s payload: %w", jobType, err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     raw,
		Priority:    PriorityNormal,
		MaxAttempts: defaultMaxAttempts,
		ScheduledAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.EnqueueJob(ctx, params)
	if err != nil && params.DedupeKey.Valid && repository.IsUniqueViolation(err) {
		existing, lookupErr := q.GetActiveJobByDedupeKey(ctx, params.DedupeKey.String)
		if lookupErr == nil {
			return existing, ErrJobActive
		}
	}
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue %s: %w", jobType, err)
	}
	return job, nil
}

// EnqueueEvaluateSession queues the analysis of one session. While a job for
// the session is live it returns that job and ErrJobActive.
func EnqueueEvaluateSession(ctx context.Context, q repository.Querier, payload EvaluateSessionPayload, opts ...EnqueueOption) (repository.Job, error) {
	if payload.SessionID == uuid.Nil || payload.UserID == uuid.Nil {
		return repository.Job{}, errors.New("enqueue evaluate_session: session and user IDs are required")
	}
	opts = append([]EnqueueOption{WithDedupeKey(EvaluateSessionDedupeKey(payload.SessionID))}, opts...)
	return EnqueueJob(ctx, q, JobTypeEvaluateSession, payload, opts...)
}
