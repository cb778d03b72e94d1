package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/hireready/internal/ai"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/DukeRupert/hireready/internal/worker"
)

// EvaluateSessionHandler runs the detailed analysis of an ended interview.
// It sends the transcript to the evaluator and stores the result.
type EvaluateSessionHandler struct {
	queries   repository.Querier
	evaluator ai.Evaluator
	analyses  service.AnalysisService
	timeout   time.Duration
	logger    *slog.Logger
}

// NewEvaluateSessionHandler creates a new handler for evaluate_session jobs.
// timeout bounds each evaluator call.
func NewEvaluateSessionHandler(
	queries repository.Querier,
	evaluator ai.Evaluator,
	analyses service.AnalysisService,
	timeout time.Duration,
	logger *slog.Logger,
) *EvaluateSessionHandler {
	return &EvaluateSessionHandler{
		queries:   queries,
		evaluator: evaluator,
		analyses:  analyses,
		timeout:   timeout,
		logger:    logger,
	}
}

// Type returns the job type identifier.
func (h *EvaluateSessionHandler) Type() string {
	return worker.JobTypeEvaluateSession
}

// Handle executes the evaluation job. Timeouts and transient provider
// failures are retried by the worker; bad input fails permanently.
func (h *EvaluateSessionHandler) Handle(ctx context.Context, payload []byte) error {
	const op = "jobs.evaluate_session"

	var p worker.EvaluateSessionPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return worker.NewPermanentError(fmt.Errorf("invalid payload: %w", err))
	}

	logger := h.logger.With("session_id", p.SessionID, "user_id", p.UserID)

	sess, err := h.queries.GetInterviewSession(ctx, p.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return worker.NewPermanentError(fmt.Errorf("session not found: %w", err))
		}
		return fmt.Errorf("fetch session: %w", err)
	}
	if sess.UserID != p.UserID {
		return worker.NewPermanentError(fmt.Errorf("session does not belong to user"))
	}

	if _, err := h.queries.GetAnalysisResult(ctx, p.SessionID); err == nil {
		logger.Info("Session already analyzed")
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("check existing analysis: %w", err)
	}

	evalCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	eval, err := h.evaluator.EvaluateSession(evalCtx, ai.EvaluateParams{
		SessionID:  p.SessionID,
		UserID:     p.UserID,
		Transcript: sess.Transcript,
		Role:       p.Role,
	})
	if err != nil {
		switch {
		case ai.IsTimeout(err):
			return domain.UpstreamTimeout(err, op, "The evaluation service timed out.")
		case errors.Is(err, ai.EAIInvalidInput), errors.Is(err, ai.EAIUnauthorized):
			return worker.NewPermanentError(domain.Upstream(err, op, "The evaluation service rejected the request."))
		default:
			return domain.Upstream(err, op, "The evaluation service failed.")
		}
	}

	raw, err := json.Marshal(eval)
	if err != nil {
		return worker.NewPermanentError(fmt.Errorf("marshal evaluation: %w", err))
	}

	stored, err := h.analyses.Store(ctx, p.UserID, p.SessionID, raw)
	if err != nil {
		return fmt.Errorf("store analysis: %w", err)
	}
	if !stored {
		logger.Info("Analysis stored by another worker")
		return nil
	}

	logger.Info("Session analysis complete",
		"overall_score", eval.OverallScore,
		"duration_ms", eval.Usage.Duration.Milliseconds(),
	)
	return nil
}
