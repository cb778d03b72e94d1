package domain

import (
	"time"

	"github.com/google/uuid"
)

// SessionEndReason records which path ended an interview session.
type SessionEndReason string

const (
	EndReasonExplicit  SessionEndReason = "explicit"
	EndReasonHeartbeat SessionEndReason = "heartbeat"
	EndReasonBeacon    SessionEndReason = "beacon"
	EndReasonStale     SessionEndReason = "stale"
)

// IsValid reports whether r is a known end reason.
func (r SessionEndReason) IsValid() bool {
	switch r {
	case EndReasonExplicit, EndReasonHeartbeat, EndReasonBeacon, EndReasonStale:
		return true
	}
	return false
}

// InterviewSession is one voice interview run by the external orchestration
// service. Minutes are deducted once, when the session ends.
type InterviewSession struct {
	ID               uuid.UUID
	UserID           uuid.UUID
	StartedAt        time.Time
	LastHeartbeatAt  time.Time
	EndedAt          *time.Time
	DurationSeconds  int64
	DurationDeducted bool
	MonthlyDeducted  int64
	CreditDeducted   int64
	EndReason        SessionEndReason
}

// IsEnded reports whether the session has been closed.
func (s *InterviewSession) IsEnded() bool {
	return s.EndedAt != nil
}

// SessionMinutes rounds a duration up to whole minutes. Negative durations
// count as zero.
func SessionMinutes(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	m := int64(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

// DrawDown splits a session's minutes across the two pools.
type DrawDown struct {
	// Monthly is added to the monthly counter. It includes any overage that
	// neither pool could cover.
	Monthly int64
	// Credit is taken from the top-up balance.
	Credit int64
	// Overage is the part of Monthly beyond the limit.
	Overage int64
}

// PlanDrawDown applies the draw-down order: monthly allowance first, then
// top-up credit, then overage recorded on the monthly counter. The credit
// part never exceeds the available balance.
func PlanDrawDown(minutes, limit, used, credit int64) DrawDown {
	if minutes <= 0 {
		return DrawDown{}
	}
	if limit == Unlimited {
		return DrawDown{Monthly: minutes}
	}

	available := limit - used
	if available < 0 {
		available = 0
	}
	draw := min(minutes, available)
	rest := minutes - draw

	if credit < 0 {
		credit = 0
	}
	fromCredit := min(rest, credit)
	overage := rest - fromCredit

	return DrawDown{
		Monthly: draw + overage,
		Credit:  fromCredit,
		Overage: overage,
	}
}

// DeductionResult is returned by the session-end deduction.
type DeductionResult struct {
	SessionID       uuid.UUID `json:"session_id"`
	Minutes         int64     `json:"minutes"`
	MonthlyDeducted int64     `json:"monthly_deducted"`
	CreditDeducted  int64     `json:"credit_deducted"`
	Overage         int64     `json:"overage"`
	AlreadyDeducted bool      `json:"already_deducted"`
}
