// Package domain contains core business types and interfaces.
//
// This file defines the plan catalog: the static mapping from plan key to
// quantitative limits. The identity provider only tells us which plan a user
// holds; the limit values live here.
package domain

import "strings"

// Unlimited marks a limit with no upper bound.
const Unlimited int64 = -1

// PlanKey is the stable identifier of a plan.
type PlanKey string

const (
	PlanFree         PlanKey = "free"
	PlanStarter      PlanKey = "starter"
	PlanProfessional PlanKey = "professional"
	PlanPremium      PlanKey = "premium"
)

// Limits holds the per-period allowance of each usage type.
type Limits struct {
	MinutesPerMonth      int64 `json:"minutes_per_month"`
	InterviewsPerDay     int64 `json:"interviews_per_day"`
	AnalysesPerMonth     int64 `json:"analyses_per_month"`
	VideoReviewsPerMonth int64 `json:"video_reviews_per_month"`
}

// For returns the limit that applies to the given usage type. Unknown types
// get zero so nothing is granted by accident.
func (l Limits) For(t UsageType) int64 {
	switch t {
	case UsageMinutes:
		return l.MinutesPerMonth
	case UsageInterviews:
		return l.InterviewsPerDay
	case UsageDetailedAnalysis:
		return l.AnalysesPerMonth
	case UsageVideoReviews:
		return l.VideoReviewsPerMonth
	default:
		return 0
	}
}

// Plan is a catalog entry.
type Plan struct {
	Key        PlanKey `json:"key"`
	Name       string  `json:"name"`
	PriceCents int64   `json:"price_cents"`
	Limits     Limits  `json:"limits"`
}

// plans is immutable at runtime. Changing a limit is a deploy.
var plans = map[PlanKey]Plan{
	PlanFree: {
		Key:  PlanFree,
		Name: "Free",
		Limits: Limits{
			MinutesPerMonth:      2,
			InterviewsPerDay:     1,
			AnalysesPerMonth:     1,
			VideoReviewsPerMonth: 0,
		},
	},
	PlanStarter: {
		Key:        PlanStarter,
		Name:       "Starter",
		PriceCents: 1900,
		Limits: Limits{
			MinutesPerMonth:      60,
			InterviewsPerDay:     3,
			AnalysesPerMonth:     10,
			VideoReviewsPerMonth: 2,
		},
	},
	PlanProfessional: {
		Key:        PlanProfessional,
		Name:       "Professional",
		PriceCents: 4900,
		Limits: Limits{
			MinutesPerMonth:      300,
			InterviewsPerDay:     10,
			AnalysesPerMonth:     50,
			VideoReviewsPerMonth: 10,
		},
	},
	PlanPremium: {
		Key:        PlanPremium,
		Name:       "Premium",
		PriceCents: 9900,
		Limits: Limits{
			MinutesPerMonth:      Unlimited,
			InterviewsPerDay:     Unlimited,
			AnalysesPerMonth:     Unlimited,
			VideoReviewsPerMonth: Unlimited,
		},
	},
}

// planRank orders plans from lowest to highest.
var planRank = []PlanKey{PlanFree, PlanStarter, PlanProfessional, PlanPremium}

// IsValid reports whether the key names a catalog plan.
func (k PlanKey) IsValid() bool {
	_, ok := plans[k]
	return ok
}

// Rank returns the position of the plan in the hierarchy, or -1 if unknown.
func (k PlanKey) Rank() int {
	for i, p := range planRank {
		if p == k {
			return i
		}
	}
	return -1
}

// ParsePlanKey normalizes a raw plan identifier. Provider slugs may carry a
// "u:" (user) or "o:" (organization) scope prefix.
func ParsePlanKey(raw string) PlanKey {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "u:")
	s = strings.TrimPrefix(s, "o:")
	return PlanKey(s)
}

// LookupPlan returns the catalog entry for key, falling back to the free plan
// for unknown keys.
func LookupPlan(key PlanKey) Plan {
	if p, ok := plans[key]; ok {
		return p
	}
	return plans[PlanFree]
}

// LimitsFor returns the limits for key. Unknown keys resolve to the free
// tier, never to unlimited.
func LimitsFor(key PlanKey) Limits {
	return LookupPlan(key).Limits
}

// Plans returns the catalog ordered from lowest to highest tier.
func Plans() []Plan {
	out := make([]Plan, 0, len(planRank))
	for _, k := range planRank {
		out = append(out, plans[k])
	}
	return out
}

// HighestPlan returns the highest-ranked plan among the given entitlement
// flags. Unknown flags are ignored; no recognized flag yields free.
func HighestPlan(flags []string) PlanKey {
	best := PlanFree
	for _, f := range flags {
		k := ParsePlanKey(f)
		if k.Rank() > best.Rank() {
			best = k
		}
	}
	return best
}
