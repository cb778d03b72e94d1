package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/DukeRupert/hireready/internal/cache"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/DukeRupert/hireready/internal/worker"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// AnalysisService queues detailed analyses and serves their results. The
// evaluation itself runs in the evaluate_session job.
type AnalysisService interface {
	// Request gates one detailed analysis and queues it. A session that was
	// already analyzed returns the stored result without consuming quota, and
	// a session whose job is still live returns that job.
	Request(ctx context.Context, userID, sessionID uuid.UUID, role string) (*domain.AnalysisRequest, error)

	// Result returns a finished analysis, from the cache when possible.
	Result(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Analysis, error)

	// Store saves a finished evaluation, caches it and commits one analysis.
	// Returns false when the session already had a result.
	Store(ctx context.Context, userID, sessionID uuid.UUID, result json.RawMessage) (bool, error)
}

// =============================================================================
// Implementation
// =============================================================================

type analysisService struct {
	store  repository.Store
	usage  UsageService
	cache  cache.Cache
	logger *slog.Logger
}

// NewAnalysisService creates a new AnalysisService.
func NewAnalysisService(store repository.Store, usage UsageService, c cache.Cache, logger *slog.Logger) AnalysisService {
	return &analysisService{
		store:  store,
		usage:  usage,
		cache:  c,
		logger: logger,
	}
}

func (s *analysisService) Request(ctx context.Context, userID, sessionID uuid.UUID, role string) (*domain.AnalysisRequest, error) {
	const op = "analysis.request"

	sess, err := s.store.GetInterviewSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && sess.UserID != userID) {
		return nil, domain.NotFound(op, "session", sessionID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load session")
	}
	if !sess.EndedAt.Valid {
		return nil, domain.Invalid(op, "The session has not ended yet.")
	}

	if existing, err := s.load(ctx, sessionID); err == nil {
		return &domain.AnalysisRequest{Existing: existing}, nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to load analysis")
	}

	if strings.TrimSpace(sess.Transcript) == "" {
		return nil, domain.Invalid(op, "The session has no transcript to analyze.")
	}

	// A request while the job is still queued or running joins it.
	pending, err := s.store.GetActiveJobByDedupeKey(ctx, worker.EvaluateSessionDedupeKey(sessionID))
	if err == nil {
		s.logger.Info("Analysis already queued", "user_id", userID, "session_id", sessionID, "job_id", pending.ID)
		return &domain.AnalysisRequest{JobID: &pending.ID}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to look up queued analysis")
	}

	if _, err := s.usage.Require(ctx, userID, domain.UsageDetailedAnalysis, 1); err != nil {
		return nil, err
	}

	job, err := worker.EnqueueEvaluateSession(ctx, s.store, worker.EvaluateSessionPayload{
		SessionID: sessionID,
		UserID:    userID,
		Role:      strings.TrimSpace(role),
	}, worker.WithPriority(worker.PriorityHigh))
	if errors.Is(err, worker.ErrJobActive) {
		return &domain.AnalysisRequest{JobID: &job.ID}, nil
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to queue analysis")
	}

	s.logger.Info("Analysis queued", "user_id", userID, "session_id", sessionID, "job_id", job.ID)
	return &domain.AnalysisRequest{JobID: &job.ID}, nil
}

func (s *analysisService) Result(ctx context.Context, userID, sessionID uuid.UUID) (*domain.Analysis, error) {
	const op = "analysis.result"

	if raw, err := s.cache.Get(ctx, domain.AnalysisCacheKey(sessionID)); err == nil {
		var a domain.Analysis
		if err := json.Unmarshal(raw, &a); err == nil {
			if a.UserID != userID {
				return nil, domain.NotFound(op, "analysis", sessionID.String())
			}
			return &a, nil
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("Analysis cache read failed", "session_id", sessionID, "error", err)
	}

	a, err := s.load(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && a.UserID != userID) {
		return nil, domain.NotFound(op, "analysis", sessionID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load analysis")
	}
	s.put(ctx, a)
	return a, nil
}

func (s *analysisService) Store(ctx context.Context, userID, sessionID uuid.UUID, result json.RawMessage) (bool, error) {
	const op = "analysis.store"

	row, err := s.store.InsertAnalysisResult(ctx, repository.InsertAnalysisResultParams{
		SessionID: sessionID,
		UserID:    userID,
		Result:    result,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal(err, op, "failed to store analysis")
	}

	s.put(ctx, analysisFromRow(row))

	if _, err := s.usage.Track(ctx, userID, domain.UsageDetailedAnalysis, 1); err != nil {
		s.logger.Warn("Failed to commit analysis usage", "user_id", userID, "session_id", sessionID, "error", err)
	}
	return true, nil
}

func (s *analysisService) load(ctx context.Context, sessionID uuid.UUID) (*domain.Analysis, error) {
	row, err := s.store.GetAnalysisResult(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return analysisFromRow(row), nil
}

// put caches a; failures only cost a later database read.
func (s *analysisService) put(ctx context.Context, a *domain.Analysis) {
	raw, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, domain.AnalysisCacheKey(a.SessionID), raw, 0); err != nil {
		s.logger.Warn("Analysis cache write failed", "session_id", a.SessionID, "error", err)
	}
}

func analysisFromRow(r repository.AnalysisResult) *domain.Analysis {
	return &domain.Analysis{
		SessionID: r.SessionID,
		UserID:    r.UserID,
		Result:    r.Result,
		CreatedAt: r.CreatedAt,
	}
}
