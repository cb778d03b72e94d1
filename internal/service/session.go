package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// staleSweepBatch bounds how many abandoned sessions one sweep closes.
const staleSweepBatch = 100

// =============================================================================
// Interface Definition
// =============================================================================

// SessionService runs the interview session lifecycle and the session-end
// minute deduction.
type SessionService interface {
	// Start gates one minute and one daily interview, opens a session and
	// commits the interview. Returns domain.EQUOTA when either gate denies.
	// The returned check result tells the caller which pool covers minutes.
	Start(ctx context.Context, userID uuid.UUID) (*domain.InterviewSession, *domain.UsageCheckResult, error)

	// Get returns a session owned by userID.
	Get(ctx context.Context, userID, sessionID uuid.UUID) (*domain.InterviewSession, error)

	// Heartbeat records liveness. When ended is true the heartbeat doubles as
	// an end signal and runs the deduction.
	Heartbeat(ctx context.Context, userID, sessionID uuid.UUID, ended bool) (*domain.DeductionResult, error)

	// End closes the session and runs the deduction. Safe to call from every
	// end path; only the first call changes the ledger.
	End(ctx context.Context, params EndSessionParams) (*domain.DeductionResult, error)

	// Deduct runs the exactly-once minute deduction for a session.
	Deduct(ctx context.Context, sessionID uuid.UUID, reason domain.SessionEndReason, endedAt time.Time) (*domain.DeductionResult, error)

	// SweepStale ends sessions whose last heartbeat is older than the stale
	// threshold, charging up to the last heartbeat. Returns how many it ended.
	SweepStale(ctx context.Context) (int, error)
}

// EndSessionParams are the inputs of an explicit or beacon end.
type EndSessionParams struct {
	UserID     uuid.UUID
	SessionID  uuid.UUID
	Reason     domain.SessionEndReason
	Transcript string
}

// =============================================================================
// Implementation
// =============================================================================

type sessionService struct {
	store      repository.Store
	usage      UsageService
	staleAfter time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewSessionService creates a new SessionService.
func NewSessionService(store repository.Store, usage UsageService, staleAfter time.Duration, logger *slog.Logger) SessionService {
	return &sessionService{
		store:      store,
		usage:      usage,
		staleAfter: staleAfter,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *sessionService) Start(ctx context.Context, userID uuid.UUID) (*domain.InterviewSession, *domain.UsageCheckResult, error) {
	const op = "session.start"

	minutes, err := s.usage.Require(ctx, userID, domain.UsageMinutes, 1)
	if err != nil {
		return nil, minutes, err
	}
	if _, err := s.usage.Require(ctx, userID, domain.UsageInterviews, 1); err != nil {
		return nil, minutes, err
	}

	row, err := s.store.CreateInterviewSession(ctx, repository.CreateInterviewSessionParams{
		UserID:    userID,
		StartedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, nil, domain.Internal(err, op, "failed to start session")
	}

	// The session is granted at this point; a failed commit is logged only.
	if _, err := s.usage.Track(ctx, userID, domain.UsageInterviews, 1); err != nil {
		s.logger.Warn("Failed to commit interview usage",
			"user_id", userID,
			"session_id", row.ID,
			"error", err,
		)
	}

	sess := sessionFromRow(row)
	s.logger.Info("Session started",
		"user_id", userID,
		"session_id", sess.ID,
		"covered_by", minutes.CoveredBy,
	)
	return &sess, minutes, nil
}

func (s *sessionService) Get(ctx context.Context, userID, sessionID uuid.UUID) (*domain.InterviewSession, error) {
	const op = "session.get"

	row, err := s.store.GetInterviewSession(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && row.UserID != userID) {
		return nil, domain.NotFound(op, "session", sessionID.String())
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load session")
	}
	sess := sessionFromRow(row)
	return &sess, nil
}

func (s *sessionService) Heartbeat(ctx context.Context, userID, sessionID uuid.UUID, ended bool) (*domain.DeductionResult, error) {
	const op = "session.heartbeat"

	if _, err := s.Get(ctx, userID, sessionID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if ended {
		return s.Deduct(ctx, sessionID, domain.EndReasonHeartbeat, now)
	}

	_, err := s.store.TouchInterviewSession(ctx, repository.TouchInterviewSessionParams{ID: sessionID, At: now})
	if errors.Is(err, sql.ErrNoRows) {
		// Already ended by another path; report its deduction.
		return s.Deduct(ctx, sessionID, domain.EndReasonHeartbeat, now)
	}
	if err != nil {
		return nil, domain.Internal(err, op, "failed to record heartbeat")
	}
	return nil, nil
}

func (s *sessionService) End(ctx context.Context, params EndSessionParams) (*domain.DeductionResult, error) {
	const op = "session.end"

	if !params.Reason.IsValid() {
		return nil, domain.NewValidationError(op, "reason", "Unknown end reason")
	}
	if _, err := s.Get(ctx, params.UserID, params.SessionID); err != nil {
		return nil, err
	}

	if params.Transcript != "" {
		if err := s.store.SetSessionTranscript(ctx, repository.SetSessionTranscriptParams{
			ID:         params.SessionID,
			Transcript: params.Transcript,
		}); err != nil {
			s.logger.Warn("Failed to store transcript", "session_id", params.SessionID, "error", err)
		}
	}

	return s.Deduct(ctx, params.SessionID, params.Reason, s.now().UTC())
}

// Deduct claims the session's deduction marker and applies the draw-down in
// one transaction. A concurrent or repeated call finds the marker set and
// returns the stored result with AlreadyDeducted.
func (s *sessionService) Deduct(ctx context.Context, sessionID uuid.UUID, reason domain.SessionEndReason, endedAt time.Time) (*domain.DeductionResult, error) {
	const op = "session.deduct"

	var result domain.DeductionResult
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		sess, err := q.ClaimSessionDeduction(ctx, repository.ClaimSessionDeductionParams{
			ID:        sessionID,
			EndedAt:   endedAt,
			EndReason: string(reason),
		})
		if errors.Is(err, sql.ErrNoRows) {
			prior, err := q.GetInterviewSession(ctx, sessionID)
			if err != nil {
				return err
			}
			result = domain.DeductionResult{
				SessionID:       sessionID,
				Minutes:         domain.SessionMinutes(time.Duration(prior.DurationSeconds.Int64) * time.Second),
				MonthlyDeducted: prior.MonthlyDeducted,
				CreditDeducted:  prior.CreditDeducted,
				AlreadyDeducted: true,
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("claim deduction: %w", err)
		}

		result, err = s.applyDrawDown(ctx, q, sess)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound(op, "session", sessionID.String())
	}
	if err != nil {
		metrics.SessionDeductionsTotal.WithLabelValues(string(reason), "error").Inc()
		return nil, domain.Internal(err, op, "failed to deduct session minutes")
	}

	if result.AlreadyDeducted {
		metrics.SessionDeductionsTotal.WithLabelValues(string(reason), "already_deducted").Inc()
		s.logger.Debug("Session already deducted", "session_id", sessionID, "reason", reason)
		return &result, nil
	}

	metrics.SessionDeductionsTotal.WithLabelValues(string(reason), "deducted").Inc()
	metrics.MinutesDeductedTotal.WithLabelValues("monthly").Add(float64(result.MonthlyDeducted - result.Overage))
	metrics.MinutesDeductedTotal.WithLabelValues("credit").Add(float64(result.CreditDeducted))
	metrics.MinutesDeductedTotal.WithLabelValues("overage").Add(float64(result.Overage))
	s.logger.Info("Session minutes deducted",
		"session_id", sessionID,
		"reason", reason,
		"minutes", result.Minutes,
		"monthly", result.MonthlyDeducted,
		"credit", result.CreditDeducted,
		"overage", result.Overage,
	)
	return &result, nil
}

func (s *sessionService) applyDrawDown(ctx context.Context, q repository.Querier, sess repository.InterviewSession) (domain.DeductionResult, error) {
	endedAt := sess.EndedAt.Time
	minutes := domain.SessionMinutes(time.Duration(sess.DurationSeconds.Int64) * time.Second)
	result := domain.DeductionResult{SessionID: sess.ID, Minutes: minutes}

	sub, err := loadSubscription(ctx, q, sess.UserID)
	if err != nil {
		return result, fmt.Errorf("load subscription: %w", err)
	}
	limit := domain.LimitsFor(sub.EffectivePlan()).MinutesPerMonth

	counter, err := activeCounter(ctx, q, sess.UserID, domain.UsageMinutes, sub.BillingPeriod(), endedAt)
	if err != nil {
		return result, fmt.Errorf("load minutes counter: %w", err)
	}
	cb, err := creditBalance(ctx, q, sess.UserID)
	if err != nil {
		return result, fmt.Errorf("load credit: %w", err)
	}

	dd := domain.PlanDrawDown(minutes, limit, counter.Count, cb.Balance)

	if dd.Credit > 0 {
		drawn, err := q.DrawCredit(ctx, repository.DrawCreditParams{UserID: sess.UserID, Minutes: dd.Credit})
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return result, fmt.Errorf("draw credit: %w", err)
		}
		// Whatever the balance could not cover becomes overage.
		if short := dd.Credit - drawn.Drawn; short > 0 {
			dd.Credit -= short
			dd.Monthly += short
			dd.Overage += short
		}
	}

	if dd.Monthly > 0 {
		if _, err := q.IncrementUsage(ctx, repository.IncrementUsageParams{
			UsageKeyParams: repository.UsageKeyParams{
				UserID:      sess.UserID,
				UsageType:   string(domain.UsageMinutes),
				PeriodStart: counter.PeriodStart,
				PeriodEnd:   counter.PeriodEnd,
			},
			Amount: dd.Monthly,
		}); err != nil {
			return result, fmt.Errorf("increment minutes: %w", err)
		}
	}

	if err := q.RecordSessionDeduction(ctx, repository.RecordSessionDeductionParams{
		ID:              sess.ID,
		MonthlyDeducted: dd.Monthly,
		CreditDeducted:  dd.Credit,
	}); err != nil {
		return result, fmt.Errorf("record deduction: %w", err)
	}

	result.MonthlyDeducted = dd.Monthly
	result.CreditDeducted = dd.Credit
	result.Overage = dd.Overage
	return result, nil
}

func (s *sessionService) SweepStale(ctx context.Context) (int, error) {
	const op = "session.sweep_stale"

	cutoff := s.now().UTC().Add(-s.staleAfter)
	stale, err := s.store.ListStaleSessions(ctx, repository.ListStaleSessionsParams{
		Before: cutoff,
		Limit:  staleSweepBatch,
	})
	if err != nil {
		return 0, domain.Internal(err, op, "failed to list stale sessions")
	}

	ended := 0
	for _, sess := range stale {
		res, err := s.Deduct(ctx, sess.ID, domain.EndReasonStale, sess.LastHeartbeatAt)
		if err != nil {
			s.logger.Error("Failed to end stale session", "session_id", sess.ID, "error", err)
			continue
		}
		if !res.AlreadyDeducted {
			ended++
		}
	}

	if ended > 0 {
		s.logger.Info("Ended stale sessions", "count", ended, "cutoff", cutoff)
	}
	return ended, nil
}

// RunSessionSweeper calls SweepStale every interval until ctx is done.
func RunSessionSweeper(ctx context.Context, svc SessionService, interval time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.SweepStale(ctx); err != nil {
				logger.Error("Session sweep failed", "error", err)
			}
		}
	}
}
