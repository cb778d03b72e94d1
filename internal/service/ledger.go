package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
)

// =============================================================================
// Shared ledger helpers
// =============================================================================

// loadSubscription returns the user's subscription, or nil when no row exists.
func loadSubscription(ctx context.Context, q repository.Querier, userID uuid.UUID) (*domain.Subscription, error) {
	row, err := q.GetSubscription(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sub := subscriptionFromRow(row)
	return &sub, nil
}

// activeCounter finds the counter that covers at. When none exists a zero row
// is created for the period PeriodFor selects. An existing counter keeps its
// period until it ends, so a transition that brings new period dates never
// resets accrued usage.
func activeCounter(ctx context.Context, q repository.Querier, userID uuid.UUID, t domain.UsageType, billing *domain.Period, at time.Time) (repository.UsageRecord, error) {
	rec, err := q.GetActiveUsageRecord(ctx, repository.GetActiveUsageRecordParams{
		UserID:    userID,
		UsageType: string(t),
		At:        at,
	})
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return repository.UsageRecord{}, err
	}

	p := domain.PeriodFor(t, billing, at)
	return q.EnsureUsageRecord(ctx, repository.UsageKeyParams{
		UserID:      userID,
		UsageType:   string(t),
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
	})
}

// creditBalance returns the user's top-up balance, zero when no row exists.
func creditBalance(ctx context.Context, q repository.Querier, userID uuid.UUID) (domain.CreditBalance, error) {
	row, err := q.GetCreditBalance(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.CreditBalance{UserID: userID}, nil
	}
	if err != nil {
		return domain.CreditBalance{}, err
	}
	return creditFromRow(row), nil
}

// =============================================================================
// Row conversion
// =============================================================================

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func userFromRow(r repository.User) domain.User {
	return domain.User{
		ID:          r.ID,
		ExternalID:  r.ExternalID,
		Email:       r.Email,
		FirstName:   r.FirstName,
		LastName:    r.LastName,
		DisplayName: r.DisplayName,
		ImageURL:    r.ImageUrl,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func subscriptionFromRow(r repository.Subscription) domain.Subscription {
	return domain.Subscription{
		UserID:             r.UserID,
		PlanKey:            domain.PlanKey(r.PlanKey),
		Status:             domain.SubscriptionStatus(r.Status),
		CurrentPeriodStart: nullTimePtr(r.CurrentPeriodStart),
		CurrentPeriodEnd:   nullTimePtr(r.CurrentPeriodEnd),
		SourceEventAt:      nullTimePtr(r.SourceEventAt),
		UpdatedAt:          r.UpdatedAt,
	}
}

func usageFromRow(r repository.UsageRecord) domain.UsageRecord {
	return domain.UsageRecord{
		UserID:    r.UserID,
		UsageType: domain.UsageType(r.UsageType),
		Count:     r.Count,
		Period:    domain.Period{Start: r.PeriodStart, End: r.PeriodEnd},
	}
}

func creditFromRow(r repository.CreditBalance) domain.CreditBalance {
	return domain.CreditBalance{
		UserID:            r.UserID,
		Balance:           r.Balance,
		LifetimePurchased: r.LifetimePurchased,
		LifetimeConsumed:  r.LifetimeConsumed,
	}
}

func couponFromRow(r repository.Coupon) domain.Coupon {
	c := domain.Coupon{
		Code:            r.Code,
		Minutes:         r.Minutes,
		Active:          r.Active,
		ExpiresAt:       nullTimePtr(r.ExpiresAt),
		RedemptionCount: r.RedemptionCount,
	}
	if r.MaxRedemptions.Valid {
		v := r.MaxRedemptions.Int64
		c.MaxRedemptions = &v
	}
	return c
}

func sessionFromRow(r repository.InterviewSession) domain.InterviewSession {
	return domain.InterviewSession{
		ID:               r.ID,
		UserID:           r.UserID,
		StartedAt:        r.StartedAt,
		LastHeartbeatAt:  r.LastHeartbeatAt,
		EndedAt:          nullTimePtr(r.EndedAt),
		DurationSeconds:  r.DurationSeconds.Int64,
		DurationDeducted: r.DurationDeducted,
		MonthlyDeducted:  r.MonthlyDeducted,
		CreditDeducted:   r.CreditDeducted,
		EndReason:        domain.SessionEndReason(r.EndReason),
	}
}
