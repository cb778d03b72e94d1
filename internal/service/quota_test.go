package service

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestUsageService_FreePlanScenario(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	res, err := env.usage.Check(ctx, userID, domain.UsageMinutes, 2)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(2), res.Remaining)
	assert.Equal(t, int64(2), res.LimitValue)
	assert.Equal(t, domain.PlanFree, res.PlanKey)

	_, err = env.usage.Track(ctx, userID, domain.UsageMinutes, 2)
	require.NoError(t, err)

	res, err = env.usage.Check(ctx, userID, domain.UsageMinutes, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, int64(0), res.Remaining)
	assert.Equal(t, int64(2), res.CurrentUsage)
	assert.Equal(t, domain.CoveredByNone, res.CoveredBy)
}

func TestUsageService_CheckDoesNotChangeCounts(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 1)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		res, err := env.usage.Check(ctx, userID, domain.UsageMinutes, 1)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, int64(1), res.CurrentUsage)
	}
}

func TestUsageService_CheckCreatesZeroRow(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Check(ctx, userID, domain.UsageVideoReviews, 0)
	require.NoError(t, err)

	history, err := env.usage.History(ctx, userID, env.clock.Now().AddDate(0, -1, 0))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.UsageVideoReviews, history[0].UsageType)
	assert.Equal(t, int64(0), history[0].Count)
}

func TestUsageService_UnlimitedBypass(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanPremium)

	for _, ut := range domain.UsageTypes {
		_, err := env.usage.Track(ctx, userID, ut, 10_000)
		require.NoError(t, err)

		res, err := env.usage.Check(ctx, userID, ut, 1_000_000)
		require.NoError(t, err)
		assert.True(t, res.Allowed, ut)
		assert.True(t, res.IsUnlimited, ut)
		assert.Equal(t, domain.Unlimited, res.Remaining, ut)
		assert.Equal(t, int64(10_000), res.CurrentUsage, ut)
		assert.Equal(t, domain.CoveredByUnlimited, res.CoveredBy, ut)
	}
}

func TestUsageService_MinutesCoveredByCredit(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 2)
	require.NoError(t, err)
	env.grantCredit(t, userID, 5)

	tests := []struct {
		name          string
		amount        int64
		wantAllowed   bool
		wantCoveredBy domain.Coverage
	}{
		{name: "within credit", amount: 5, wantAllowed: true, wantCoveredBy: domain.CoveredByCredit},
		{name: "beyond credit", amount: 6, wantAllowed: false, wantCoveredBy: domain.CoveredByNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := env.usage.Check(ctx, userID, domain.UsageMinutes, tt.amount)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, res.Allowed)
			assert.False(t, res.MonthlyAllowed)
			assert.Equal(t, tt.wantAllowed, res.CreditAllowed)
			assert.Equal(t, tt.wantCoveredBy, res.CoveredBy)
			assert.Equal(t, int64(5), res.CreditBalance)
		})
	}
}

func TestUsageService_CreditIgnoredForOtherTypes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.grantCredit(t, userID, 100)

	_, err := env.usage.Track(ctx, userID, domain.UsageDetailedAnalysis, 1)
	require.NoError(t, err)

	res, err := env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.False(t, res.CreditAllowed)
}

func TestUsageService_Require(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Require(ctx, userID, domain.UsageInterviews, 1)
	require.NoError(t, err)
	_, err = env.usage.Track(ctx, userID, domain.UsageInterviews, 1)
	require.NoError(t, err)

	res, err := env.usage.Require(ctx, userID, domain.UsageInterviews, 1)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	require.NotNil(t, res)
	assert.False(t, res.Allowed)

	q := domain.ErrorQuota(err)
	require.NotNil(t, q)
	assert.Equal(t, int64(1), q.Current)
	assert.Equal(t, int64(1), q.Limit)
	assert.Equal(t, int64(0), q.Remaining)
}

func TestUsageService_DailyCounterResets(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Track(ctx, userID, domain.UsageInterviews, 1)
	require.NoError(t, err)

	res, err := env.usage.Check(ctx, userID, domain.UsageInterviews, 1)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	env.clock.Advance(24 * time.Hour)

	res, err = env.usage.Check(ctx, userID, domain.UsageInterviews, 1)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, int64(0), res.CurrentUsage)
}

func TestUsageService_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	tests := []struct {
		name      string
		usageType domain.UsageType
		amount    int64
	}{
		{name: "unknown type", usageType: "tokens", amount: 1},
		{name: "empty type", usageType: "", amount: 1},
		{name: "negative amount", usageType: domain.UsageMinutes, amount: -1},
		{name: "amount above cap", usageType: domain.UsageMinutes, amount: domain.MaxUsageAmount + 1},
		{name: "max int64 amount", usageType: domain.UsageDetailedAnalysis, amount: math.MaxInt64},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.usage.Check(ctx, userID, tt.usageType, tt.amount)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

			_, err = env.usage.Track(ctx, userID, tt.usageType, tt.amount)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestUsageService_HugeRequestOnExhaustedQuota(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Track(ctx, userID, domain.UsageDetailedAnalysis, 1)
	require.NoError(t, err)

	res, err := env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, domain.MaxUsageAmount)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.False(t, res.MonthlyAllowed)
	assert.Equal(t, domain.CoveredByNone, res.CoveredBy)

	_, err = env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, math.MaxInt64)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestUsageService_Summary(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)
	env.grantCredit(t, userID, 30)

	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 12)
	require.NoError(t, err)

	sum, err := env.usage.Summary(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanStarter, sum.PlanKey)
	assert.Equal(t, "Starter", sum.Plan.Name)
	assert.Equal(t, int64(30), sum.Credit.Balance)
	require.Len(t, sum.Usage, len(domain.UsageTypes))
	assert.Equal(t, domain.UsageMinutes, sum.Usage[0].UsageType)
	assert.Equal(t, int64(12), sum.Usage[0].CurrentUsage)
	assert.Equal(t, int64(48), sum.Usage[0].Remaining)
}

func TestUsageService_UnknownUserIsFree(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	res, err := env.usage.Check(ctx, uuid.New(), domain.UsageMinutes, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, res.PlanKey)
	assert.Equal(t, int64(2), res.LimitValue)
}

// Commits that stay within the limit are always allowed; the first commit
// that crosses it makes the next check fail.
func TestUsageService_Monotonicity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		env := newTestEnv(t)
		userID := env.newUser(t)
		plan := rapid.SampledFrom([]domain.PlanKey{domain.PlanStarter, domain.PlanProfessional}).Draw(rt, "plan")
		env.setPlan(t, userID, plan)
		limit := domain.LimitsFor(plan).AnalysesPerMonth

		amounts := rapid.SliceOfN(rapid.Int64Range(1, 5), 1, 40).Draw(rt, "amounts")

		var sum int64
		crossed := false
		for _, a := range amounts {
			res, err := env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, 0)
			require.NoError(rt, err)
			if sum <= limit {
				require.True(rt, res.Allowed, "sum %d within limit %d", sum, limit)
			}
			if crossed {
				one, err := env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, 1)
				require.NoError(rt, err)
				require.False(rt, one.Allowed, "sum %d above limit %d", sum, limit)
			}

			_, err = env.usage.Track(ctx, userID, domain.UsageDetailedAnalysis, a)
			require.NoError(rt, err)
			sum += a
			if sum > limit {
				crossed = true
			}
		}

		res, err := env.usage.Check(ctx, userID, domain.UsageDetailedAnalysis, 0)
		require.NoError(rt, err)
		require.Equal(rt, sum, res.CurrentUsage)
	})
}
