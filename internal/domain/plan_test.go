package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLimitsFor(t *testing.T) {
	tests := []struct {
		name string
		key  PlanKey
		want Limits
	}{
		{"free", PlanFree, Limits{MinutesPerMonth: 2, InterviewsPerDay: 1, AnalysesPerMonth: 1, VideoReviewsPerMonth: 0}},
		{"starter", PlanStarter, Limits{MinutesPerMonth: 60, InterviewsPerDay: 3, AnalysesPerMonth: 10, VideoReviewsPerMonth: 2}},
		{"premium is unlimited", PlanPremium, Limits{Unlimited, Unlimited, Unlimited, Unlimited}},
		{"unknown fails closed", PlanKey("enterprise"), Limits{MinutesPerMonth: 2, InterviewsPerDay: 1, AnalysesPerMonth: 1, VideoReviewsPerMonth: 0}},
		{"empty fails closed", PlanKey(""), LimitsFor(PlanFree)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LimitsFor(tt.key))
		})
	}
}

func TestLimits_For(t *testing.T) {
	l := LimitsFor(PlanProfessional)

	assert.Equal(t, int64(300), l.For(UsageMinutes))
	assert.Equal(t, int64(10), l.For(UsageInterviews))
	assert.Equal(t, int64(50), l.For(UsageDetailedAnalysis))
	assert.Equal(t, int64(10), l.For(UsageVideoReviews))
	assert.Equal(t, int64(0), l.For(UsageType("tokens")))
}

func TestHighestPlan(t *testing.T) {
	tests := []struct {
		name  string
		flags []string
		want  PlanKey
	}{
		{"no flags", nil, PlanFree},
		{"single", []string{"starter"}, PlanStarter},
		{"premium wins regardless of order", []string{"starter", "premium", "professional"}, PlanPremium},
		{"professional over starter", []string{"professional", "starter"}, PlanProfessional},
		{"scoped slugs", []string{"u:professional"}, PlanProfessional},
		{"org scoped and mixed case", []string{"o:Premium"}, PlanPremium},
		{"unknown ignored", []string{"enterprise", "starter"}, PlanStarter},
		{"only unknown", []string{"gold"}, PlanFree},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HighestPlan(tt.flags))
		})
	}
}

func TestPlans_Ordered(t *testing.T) {
	ps := Plans()

	assert.Len(t, ps, 4)
	for i := 1; i < len(ps); i++ {
		assert.Greater(t, ps[i].Key.Rank(), ps[i-1].Key.Rank())
		assert.GreaterOrEqual(t, ps[i].PriceCents, ps[i-1].PriceCents)
	}
	assert.Equal(t, -1, PlanKey("nope").Rank())
}
