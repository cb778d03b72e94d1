package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// Write paths reported in logs and metrics.
const (
	upsertPathProcedure = "procedure"
	upsertPathDirect    = "direct"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SubscriptionService applies plan transitions. Usage counters are never
// touched here: the plan only changes which limit the gate compares against.
type SubscriptionService interface {
	// Transition upserts the user's subscription. Cancellation resolves to
	// the free plan. An event older than the one already applied is
	// acknowledged with Applied false.
	Transition(ctx context.Context, params domain.TransitionParams) (*domain.SubscriptionState, error)

	// Get returns the user's subscription, defaulting to free when no row
	// exists.
	Get(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionState, error)

	// EnsureDefault creates a free subscription if the user has none.
	EnsureDefault(ctx context.Context, userID uuid.UUID) error
}

// =============================================================================
// Implementation
// =============================================================================

type subscriptionService struct {
	store  repository.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(store repository.Store, logger *slog.Logger) SubscriptionService {
	return &subscriptionService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

func (s *subscriptionService) Transition(ctx context.Context, params domain.TransitionParams) (*domain.SubscriptionState, error) {
	const op = "subscription.transition"

	if params.UserID == uuid.Nil {
		return nil, domain.NewValidationError(op, "user_id", "User ID is required")
	}
	p, err := params.Normalize(s.now().UTC())
	if err != nil {
		return nil, err
	}

	prev, err := loadSubscription(ctx, s.store, p.UserID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	kind := domain.ClassifyTransition(prev.EffectivePlan(), p.PlanKey, p.Cancel)

	arg := repository.UpsertSubscriptionParams{
		UserID: p.UserID,
		// Cancellation is a move to free, which stays active.
		PlanKey:       string(p.PlanKey),
		Status:        string(domain.SubscriptionActive),
		PeriodStart:   *p.PeriodStart,
		PeriodEnd:     *p.PeriodEnd,
		SourceEventAt: nullTime(p.EventAt),
	}

	applied, path, err := s.upsert(ctx, arg)
	if err != nil {
		s.logger.Error("Subscription transition failed",
			"user_id", p.UserID,
			"plan_key", p.PlanKey,
			"error", err,
		)
		return nil, domain.Upstream(err, op, "Could not update subscription")
	}

	metrics.SubscriptionTransitionsTotal.WithLabelValues(string(kind), path).Inc()
	if !applied {
		s.logger.Info("Ignored stale subscription event",
			"user_id", p.UserID,
			"plan_key", p.PlanKey,
		)
	} else {
		s.logger.Info("Subscription transitioned",
			"user_id", p.UserID,
			"from", prev.EffectivePlan(),
			"to", p.PlanKey,
			"kind", kind,
			"path", path,
		)
	}

	state, err := s.Get(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	state.Transition = kind
	state.Applied = applied
	return state, nil
}

// upsert tries the stored procedure first and falls back to a direct
// statement with the same staleness rule. It reports whether the change was
// applied and which path wrote it.
func (s *subscriptionService) upsert(ctx context.Context, arg repository.UpsertSubscriptionParams) (bool, string, error) {
	res, err := s.store.CallUpsertSubscription(ctx, arg)
	if err == nil {
		return res != "stale", upsertPathProcedure, nil
	}

	s.logger.Warn("Subscription procedure failed, using direct upsert",
		"user_id", arg.UserID,
		"error", err,
	)

	_, err = s.store.UpsertSubscription(ctx, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return false, upsertPathDirect, nil
	}
	if err != nil {
		return false, upsertPathDirect, err
	}
	return true, upsertPathDirect, nil
}

func (s *subscriptionService) Get(ctx context.Context, userID uuid.UUID) (*domain.SubscriptionState, error) {
	const op = "subscription.get"

	sub, err := loadSubscription(ctx, s.store, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load subscription")
	}
	if sub == nil {
		sub = &domain.Subscription{
			UserID:  userID,
			PlanKey: domain.PlanFree,
			Status:  domain.SubscriptionActive,
		}
	}
	return &domain.SubscriptionState{
		Subscription: *sub,
		Plan:         domain.LookupPlan(sub.EffectivePlan()),
		Applied:      true,
	}, nil
}

func (s *subscriptionService) EnsureDefault(ctx context.Context, userID uuid.UUID) error {
	const op = "subscription.ensure_default"

	m := domain.CalendarMonth(s.now().UTC())
	if err := s.store.EnsureSubscription(ctx, repository.EnsureSubscriptionParams{
		UserID:      userID,
		PeriodStart: m.Start,
		PeriodEnd:   m.End,
	}); err != nil {
		return domain.Internal(err, op, "failed to create default subscription")
	}
	return nil
}
