package repository

import (
	"context"

	"github.com/google/uuid"
)

// Querier is every statement the services run. Both *Queries and the
// in-memory store satisfy it.
type Querier interface {
	// Users
	UpsertUserFull(ctx context.Context, arg UpsertUserFullParams) (User, error)
	UpsertUserPartial(ctx context.Context, arg UpsertUserPartialParams) (User, error)
	CreateUserMinimal(ctx context.Context, arg CreateUserMinimalParams) (User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)

	// Subscriptions
	EnsureSubscription(ctx context.Context, arg EnsureSubscriptionParams) error
	CallUpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (string, error)
	UpsertSubscription(ctx context.Context, arg UpsertSubscriptionParams) (Subscription, error)
	GetSubscription(ctx context.Context, userID uuid.UUID) (Subscription, error)

	// Usage ledger
	EnsureUsageRecord(ctx context.Context, arg UsageKeyParams) (UsageRecord, error)
	GetUsageRecord(ctx context.Context, arg UsageKeyParams) (UsageRecord, error)
	GetActiveUsageRecord(ctx context.Context, arg GetActiveUsageRecordParams) (UsageRecord, error)
	IncrementUsage(ctx context.Context, arg IncrementUsageParams) (UsageRecord, error)
	ListUsageRecords(ctx context.Context, arg ListUsageRecordsParams) ([]UsageRecord, error)

	// Credit
	GetCreditBalance(ctx context.Context, userID uuid.UUID) (CreditBalance, error)
	AddCredit(ctx context.Context, arg AddCreditParams) (CreditBalance, error)
	DrawCredit(ctx context.Context, arg DrawCreditParams) (DrawCreditRow, error)

	// Coupons
	CreateCoupon(ctx context.Context, arg CreateCouponParams) (Coupon, error)
	GetCouponForUpdate(ctx context.Context, code string) (Coupon, error)
	InsertCouponRedemption(ctx context.Context, arg InsertCouponRedemptionParams) (CouponRedemption, error)
	IncrementCouponRedemptions(ctx context.Context, code string) error

	// Interview sessions
	CreateInterviewSession(ctx context.Context, arg CreateInterviewSessionParams) (InterviewSession, error)
	GetInterviewSession(ctx context.Context, id uuid.UUID) (InterviewSession, error)
	TouchInterviewSession(ctx context.Context, arg TouchInterviewSessionParams) (InterviewSession, error)
	ClaimSessionDeduction(ctx context.Context, arg ClaimSessionDeductionParams) (InterviewSession, error)
	RecordSessionDeduction(ctx context.Context, arg RecordSessionDeductionParams) error
	SetSessionTranscript(ctx context.Context, arg SetSessionTranscriptParams) error
	ListStaleSessions(ctx context.Context, arg ListStaleSessionsParams) ([]InterviewSession, error)

	// Webhooks
	InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) (WebhookEvent, error)

	// Jobs
	EnqueueJob(ctx context.Context, arg EnqueueJobParams) (Job, error)
	GetActiveJobByDedupeKey(ctx context.Context, dedupeKey string) (Job, error)
	DequeueJob(ctx context.Context) (Job, error)
	UpdateJobStarted(ctx context.Context, id uuid.UUID) error
	UpdateJobCompleted(ctx context.Context, id uuid.UUID) error
	UpdateJobFailed(ctx context.Context, arg UpdateJobFailedParams) error
	RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error)

	// Analyses
	InsertAnalysisResult(ctx context.Context, arg InsertAnalysisResultParams) (AnalysisResult, error)
	GetAnalysisResult(ctx context.Context, sessionID uuid.UUID) (AnalysisResult, error)
}

var _ Querier = (*Queries)(nil)
