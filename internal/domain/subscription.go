package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus is either active or cancelled. Upstream states such as
// past_due or trialing collapse to one of these.
type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription is the single row that records which plan a user holds.
type Subscription struct {
	UserID             uuid.UUID          `json:"user_id"`
	PlanKey            PlanKey            `json:"plan_key"`
	Status             SubscriptionStatus `json:"status"`
	CurrentPeriodStart *time.Time         `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end,omitempty"`
	SourceEventAt      *time.Time         `json:"-"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// BillingPeriod returns the subscription's period, or nil when unknown.
func (s *Subscription) BillingPeriod() *Period {
	if s == nil || s.CurrentPeriodStart == nil || s.CurrentPeriodEnd == nil {
		return nil
	}
	return &Period{Start: *s.CurrentPeriodStart, End: *s.CurrentPeriodEnd}
}

// EffectivePlan returns the plan the user is entitled to. A missing row or a
// cancelled subscription means free.
func (s *Subscription) EffectivePlan() PlanKey {
	if s == nil || s.Status != SubscriptionActive || !s.PlanKey.IsValid() {
		return PlanFree
	}
	return s.PlanKey
}

// TransitionKind labels a transition for logs and metrics.
type TransitionKind string

const (
	TransitionUpgrade   TransitionKind = "upgrade"
	TransitionDowngrade TransitionKind = "downgrade"
	TransitionRenewal   TransitionKind = "renewal"
	TransitionCancel    TransitionKind = "cancel"
)

// ClassifyTransition compares the rank of two plans.
func ClassifyTransition(from, to PlanKey, cancel bool) TransitionKind {
	switch {
	case cancel:
		return TransitionCancel
	case to.Rank() > from.Rank():
		return TransitionUpgrade
	case to.Rank() < from.Rank():
		return TransitionDowngrade
	default:
		return TransitionRenewal
	}
}

// TransitionParams describes a plan change.
type TransitionParams struct {
	UserID      uuid.UUID
	PlanKey     PlanKey
	Cancel      bool
	PeriodStart *time.Time
	PeriodEnd   *time.Time
	// EventAt is the provider's timestamp for webhook-driven transitions.
	// Older events than the one already applied are ignored.
	EventAt *time.Time
}

// Normalize resolves cancellation to the free plan and fills a default
// billing period.
func (p TransitionParams) Normalize(now time.Time) (TransitionParams, error) {
	if p.Cancel {
		p.PlanKey = PlanFree
	}
	if !p.PlanKey.IsValid() {
		return p, NewValidationError("subscription.transition", "plan_key", "Unknown plan")
	}
	if (p.PeriodStart == nil) != (p.PeriodEnd == nil) {
		return p, NewValidationError("subscription.transition", "period", "Period start and end must be given together")
	}
	if p.PeriodStart == nil {
		m := CalendarMonth(now)
		p.PeriodStart, p.PeriodEnd = &m.Start, &m.End
	}
	if !p.PeriodEnd.After(*p.PeriodStart) {
		return p, NewValidationError("subscription.transition", "period", "Period end must be after start")
	}
	return p, nil
}

// SubscriptionState is what callers see after a transition or lookup.
type SubscriptionState struct {
	Subscription
	Plan       Plan           `json:"plan"`
	Transition TransitionKind `json:"transition,omitempty"`
	Applied    bool           `json:"applied"`
}
