// Package service contains the business logic layer.
//
// This file implements the quota gate and the usage committer. The gate is
// the enforcement point; the committer is bookkeeping and never refuses.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Interface Definition
// =============================================================================

// UsageService answers quota questions and records consumption.
type UsageService interface {
	// Check reports whether the user may consume amount units of usageType.
	// It creates a zero counter for the active period if none exists but never
	// changes a count, so repeated checks return the same answer.
	// Returns domain.EINVALID for an unknown type or an amount outside
	// [0, domain.MaxUsageAmount].
	Check(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageCheckResult, error)

	// Require is Check that turns a denial into a domain.EQUOTA error.
	Require(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageCheckResult, error)

	// Track adds amount to the active period counter, creating it if needed.
	// It does not consult the limit.
	Track(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageRecord, error)

	// Summary returns a zero-amount check for every usage type plus the
	// credit balance.
	Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error)

	// History lists the user's counters whose period ended after since.
	History(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.UsageRecord, error)
}

// =============================================================================
// Implementation
// =============================================================================

type usageService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewUsageService creates a new UsageService.
func NewUsageService(store repository.Store, logger *slog.Logger) UsageService {
	return &usageService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func validateUsage(op string, t domain.UsageType, amount int64) error {
	if !t.IsValid() {
		return domain.NewValidationError(op, "usage_type", "Unknown usage type")
	}
	if amount < 0 {
		return domain.NewValidationError(op, "amount", "Amount must not be negative")
	}
	if amount > domain.MaxUsageAmount {
		return domain.NewValidationError(op, "amount", fmt.Sprintf("Amount must not exceed %d", domain.MaxUsageAmount))
	}
	return nil
}

// Check implements the quota gate.
func (s *usageService) Check(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageCheckResult, error) {
	const op = "usage.check"

	if err := validateUsage(op, usageType, amount); err != nil {
		return nil, err
	}

	res, err := checkUsage(ctx, s.store, userID, usageType, amount, s.now().UTC())
	if err != nil {
		return nil, domain.Internal(err, op, "failed to check usage")
	}

	metrics.UsageChecksTotal.WithLabelValues(string(usageType), string(res.CoveredBy)).Inc()
	if !res.Allowed {
		s.logger.Info("Usage check denied",
			"user_id", userID,
			"usage_type", usageType,
			"amount", amount,
			"current", res.CurrentUsage,
			"limit", res.LimitValue,
			"plan_key", res.PlanKey,
		)
	}
	return res, nil
}

// Require implements a gated check.
func (s *usageService) Require(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageCheckResult, error) {
	const op = "usage.require"

	res, err := s.Check(ctx, userID, usageType, amount)
	if err != nil {
		return nil, err
	}
	if !res.Allowed {
		return res, domain.QuotaExceeded(op, usageType, res.CurrentUsage, res.LimitValue)
	}
	return res, nil
}

// checkUsage runs the gate against any Querier so the session service can
// reuse it.
func checkUsage(ctx context.Context, q repository.Querier, userID uuid.UUID, t domain.UsageType, amount int64, now time.Time) (*domain.UsageCheckResult, error) {
	sub, err := loadSubscription(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	plan := sub.EffectivePlan()
	limit := domain.LimitsFor(plan).For(t)

	rec, err := activeCounter(ctx, q, userID, t, sub.BillingPeriod(), now)
	if err != nil {
		return nil, err
	}

	var credit int64
	if t == domain.UsageMinutes && limit != domain.Unlimited {
		cb, err := creditBalance(ctx, q, userID)
		if err != nil {
			return nil, err
		}
		credit = cb.Balance
	}

	res := domain.EvaluateQuota(t, limit, rec.Count, amount, credit)
	res.PlanKey = plan
	return &res, nil
}

// Track implements the usage committer.
func (s *usageService) Track(ctx context.Context, userID uuid.UUID, usageType domain.UsageType, amount int64) (*domain.UsageRecord, error) {
	const op = "usage.track"

	if err := validateUsage(op, usageType, amount); err != nil {
		return nil, err
	}

	rec, err := trackUsage(ctx, s.store, userID, usageType, amount, s.now().UTC())
	if err != nil {
		metrics.UsageCommitFailuresTotal.WithLabelValues(string(usageType)).Inc()
		return nil, domain.Internal(err, op, "failed to record usage")
	}

	metrics.UsageCommittedTotal.WithLabelValues(string(usageType)).Add(float64(amount))
	s.logger.Debug("Usage tracked",
		"user_id", userID,
		"usage_type", usageType,
		"amount", amount,
		"count", rec.Count,
	)
	return rec, nil
}

// trackUsage increments the counter covering now.
func trackUsage(ctx context.Context, q repository.Querier, userID uuid.UUID, t domain.UsageType, amount int64, now time.Time) (*domain.UsageRecord, error) {
	sub, err := loadSubscription(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	cur, err := activeCounter(ctx, q, userID, t, sub.BillingPeriod(), now)
	if err != nil {
		return nil, err
	}
	row, err := q.IncrementUsage(ctx, repository.IncrementUsageParams{
		UsageKeyParams: repository.UsageKeyParams{
			UserID:      userID,
			UsageType:   string(t),
			PeriodStart: cur.PeriodStart,
			PeriodEnd:   cur.PeriodEnd,
		},
		Amount: amount,
	})
	if err != nil {
		return nil, err
	}
	rec := usageFromRow(row)
	return &rec, nil
}

// Summary returns every usage type's standing.
func (s *usageService) Summary(ctx context.Context, userID uuid.UUID) (*domain.UsageSummary, error) {
	const op = "usage.summary"

	now := s.now().UTC()
	sum := &domain.UsageSummary{PlanKey: domain.PlanFree}
	for _, t := range domain.UsageTypes {
		res, err := checkUsage(ctx, s.store, userID, t, 0, now)
		if err != nil {
			return nil, domain.Internal(err, op, "failed to load usage")
		}
		sum.PlanKey = res.PlanKey
		sum.Usage = append(sum.Usage, *res)
	}

	cb, err := creditBalance(ctx, s.store, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load credit balance")
	}
	sum.Credit = cb
	sum.Plan = domain.LookupPlan(sum.PlanKey)
	return sum, nil
}

// History lists recent counters.
func (s *usageService) History(ctx context.Context, userID uuid.UUID, since time.Time) ([]domain.UsageRecord, error) {
	const op = "usage.history"

	types := make([]string, 0, len(domain.UsageTypes))
	for _, t := range domain.UsageTypes {
		types = append(types, string(t))
	}

	rows, err := s.store.ListUsageRecords(ctx, repository.ListUsageRecordsParams{
		UserID:     userID,
		UsageTypes: types,
		Since:      since,
	})
	if err != nil {
		return nil, domain.Internal(err, op, "failed to list usage")
	}

	out := make([]domain.UsageRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, usageFromRow(r))
	}
	return out, nil
}
