package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UsageType identifies an independently limited, countable resource.
type UsageType string

const (
	UsageMinutes          UsageType = "minutes_per_month"
	UsageInterviews       UsageType = "interviews_per_day"
	UsageDetailedAnalysis UsageType = "detailed_analysis_per_month"
	UsageVideoReviews     UsageType = "video_reviews_per_month"
)

// UsageTypes lists every usage type in display order.
var UsageTypes = []UsageType{
	UsageMinutes,
	UsageInterviews,
	UsageDetailedAnalysis,
	UsageVideoReviews,
}

// ParseUsageType validates a raw usage type.
func ParseUsageType(s string) (UsageType, error) {
	t := UsageType(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown usage type %q", s)
	}
	return t, nil
}

// IsValid reports whether t is a known usage type.
func (t UsageType) IsValid() bool {
	switch t {
	case UsageMinutes, UsageInterviews, UsageDetailedAnalysis, UsageVideoReviews:
		return true
	}
	return false
}

// Label returns a human-readable name.
func (t UsageType) Label() string {
	switch t {
	case UsageMinutes:
		return "Monthly interview minutes"
	case UsageInterviews:
		return "Daily interviews"
	case UsageDetailedAnalysis:
		return "Monthly detailed analyses"
	case UsageVideoReviews:
		return "Monthly video reviews"
	}
	return string(t)
}

// Daily reports whether the counter resets every UTC day rather than every
// billing period.
func (t UsageType) Daily() bool {
	return t == UsageInterviews
}

// Period is a half-open [Start, End) interval over which a counter accumulates.
type Period struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t falls within the period.
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

// CalendarMonth returns the UTC calendar month containing now.
func CalendarMonth(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 1, 0)}
}

// CalendarDay returns the UTC day containing now.
func CalendarDay(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return Period{Start: start, End: start.AddDate(0, 0, 1)}
}

// PeriodFor selects the accounting period for a usage type. Daily types use
// the UTC day. Everything else uses the subscription's billing period when it
// covers now, and the calendar month otherwise.
func PeriodFor(t UsageType, billing *Period, now time.Time) Period {
	if t.Daily() {
		return CalendarDay(now)
	}
	if billing != nil && !billing.Start.IsZero() && billing.End.After(billing.Start) && billing.Contains(now) {
		return Period{Start: billing.Start.UTC(), End: billing.End.UTC()}
	}
	return CalendarMonth(now)
}

// UsageRecord is one counter row per (user, usage type, period).
type UsageRecord struct {
	UserID    uuid.UUID `json:"user_id"`
	UsageType UsageType `json:"usage_type"`
	Count     int64     `json:"count"`
	Period    Period    `json:"period"`
}
