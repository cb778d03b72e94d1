package repository

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type AnalysisResult struct {
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Result    json.RawMessage `json:"result"`
	CreatedAt time.Time       `json:"created_at"`
}

type Coupon struct {
	Code            string        `json:"code"`
	Minutes         int64         `json:"minutes"`
	Active          bool          `json:"active"`
	ExpiresAt       sql.NullTime  `json:"expires_at"`
	MaxRedemptions  sql.NullInt64 `json:"max_redemptions"`
	RedemptionCount int64         `json:"redemption_count"`
	CreatedAt       time.Time     `json:"created_at"`
}

type CouponRedemption struct {
	UserID     uuid.UUID `json:"user_id"`
	Code       string    `json:"code"`
	Minutes    int64     `json:"minutes"`
	RedeemedAt time.Time `json:"redeemed_at"`
}

type CreditBalance struct {
	UserID            uuid.UUID `json:"user_id"`
	Balance           int64     `json:"balance"`
	LifetimePurchased int64     `json:"lifetime_purchased"`
	LifetimeConsumed  int64     `json:"lifetime_consumed"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type InterviewSession struct {
	ID               uuid.UUID     `json:"id"`
	UserID           uuid.UUID     `json:"user_id"`
	StartedAt        time.Time     `json:"started_at"`
	LastHeartbeatAt  time.Time     `json:"last_heartbeat_at"`
	EndedAt          sql.NullTime  `json:"ended_at"`
	DurationSeconds  sql.NullInt64 `json:"duration_seconds"`
	DurationDeducted bool          `json:"duration_deducted"`
	MonthlyDeducted  int64         `json:"monthly_deducted"`
	CreditDeducted   int64         `json:"credit_deducted"`
	EndReason        string        `json:"end_reason"`
	Transcript       string        `json:"transcript"`
}

type Job struct {
	ID           uuid.UUID       `json:"id"`
	JobType      string          `json:"job_type"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempts     int32           `json:"attempts"`
	MaxAttempts  int32           `json:"max_attempts"`
	Priority     int32           `json:"priority"`
	ScheduledAt  time.Time       `json:"scheduled_at"`
	StartedAt    sql.NullTime    `json:"started_at"`
	CompletedAt  sql.NullTime    `json:"completed_at"`
	ErrorMessage sql.NullString  `json:"error_message"`
	CreatedAt    time.Time       `json:"created_at"`
	DedupeKey    sql.NullString  `json:"dedupe_key"`
}

type Subscription struct {
	UserID             uuid.UUID    `json:"user_id"`
	PlanKey            string       `json:"plan_key"`
	Status             string       `json:"status"`
	CurrentPeriodStart sql.NullTime `json:"current_period_start"`
	CurrentPeriodEnd   sql.NullTime `json:"current_period_end"`
	SourceEventAt      sql.NullTime `json:"source_event_at"`
	CreatedAt          time.Time    `json:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at"`
}

type UsageRecord struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	UsageType   string    `json:"usage_type"`
	Count       int64     `json:"count"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type User struct {
	ID          uuid.UUID `json:"id"`
	ExternalID  string    `json:"external_id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DisplayName string    `json:"display_name"`
	ImageUrl    string    `json:"image_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type WebhookEvent struct {
	Provider   string                `json:"provider"`
	EventID    string                `json:"event_id"`
	EventType  string                `json:"event_type"`
	Payload    pqtype.NullRawMessage `json:"payload"`
	ReceivedAt time.Time             `json:"received_at"`
}
