package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalProfile_Degrade(t *testing.T) {
	full := FullProfile{ExternalID: "user_1", Email: "a@example.com", FirstName: "Ada"}

	partial := full.Degrade()
	require.NotNil(t, partial)
	assert.Equal(t, TierPartial, partial.Tier())
	assert.Equal(t, "user_1", partial.ExternalUserID())

	minimal := partial.Degrade()
	require.NotNil(t, minimal)
	assert.Equal(t, TierMinimal, minimal.Tier())
	assert.Equal(t, MinimalProfile{ExternalID: "user_1", Email: "a@example.com"}, minimal)

	assert.Nil(t, minimal.Degrade())
}

func TestExternalProfile_Validate(t *testing.T) {
	tests := []struct {
		name    string
		p       ExternalProfile
		wantErr bool
	}{
		{"full ok", FullProfile{ExternalID: "u", Email: "e@x.io"}, false},
		{"full missing email", FullProfile{ExternalID: "u"}, true},
		{"partial missing id", PartialProfile{Email: "e@x.io"}, true},
		{"minimal without email", MinimalProfile{ExternalID: "u"}, false},
		{"minimal blank id", MinimalProfile{ExternalID: "  "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, EINVALID, ErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFullProfile_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", FullProfile{FirstName: "Ada", LastName: "Lovelace"}.DisplayName())
	assert.Equal(t, "Ada", FullProfile{FirstName: "Ada"}.DisplayName())
	assert.Equal(t, "ada99", FullProfile{Username: "ada99", Email: "a@x.io"}.DisplayName())
	assert.Equal(t, "a@x.io", FullProfile{Email: "a@x.io"}.DisplayName())
}

func TestTransitionParams_Normalize(t *testing.T) {
	now := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("cancel collapses to free", func(t *testing.T) {
		p, err := TransitionParams{PlanKey: PlanPremium, Cancel: true}.Normalize(now)
		require.NoError(t, err)
		assert.Equal(t, PlanFree, p.PlanKey)
		assert.Equal(t, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC), *p.PeriodStart)
		assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), *p.PeriodEnd)
	})

	t.Run("unknown plan rejected", func(t *testing.T) {
		_, err := TransitionParams{PlanKey: "gold"}.Normalize(now)
		assert.Equal(t, EINVALID, ErrorCode(err))
	})

	t.Run("half a period rejected", func(t *testing.T) {
		_, err := TransitionParams{PlanKey: PlanStarter, PeriodStart: &now}.Normalize(now)
		assert.Error(t, err)
	})

	t.Run("inverted period rejected", func(t *testing.T) {
		end := now.Add(-time.Hour)
		_, err := TransitionParams{PlanKey: PlanStarter, PeriodStart: &now, PeriodEnd: &end}.Normalize(now)
		assert.Error(t, err)
	})
}

func TestPeriodFor(t *testing.T) {
	now := time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC)
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	billing := &Period{Start: start, End: start.AddDate(0, 1, 0)}

	assert.Equal(t, CalendarDay(now), PeriodFor(UsageInterviews, billing, now))
	assert.Equal(t, *billing, PeriodFor(UsageMinutes, billing, now))
	assert.Equal(t, CalendarMonth(now), PeriodFor(UsageMinutes, nil, now))

	expired := &Period{Start: start.AddDate(0, -2, 0), End: start.AddDate(0, -1, 0)}
	assert.Equal(t, CalendarMonth(now), PeriodFor(UsageMinutes, expired, now))
}

func TestNormalizeCouponCode(t *testing.T) {
	assert.Equal(t, "WELCOME10", NormalizeCouponCode("  welcome10 "))
	assert.Equal(t, "WELCOME10", NormalizeCouponCode("WELCOME10"))
}

func TestQuotaExceededError(t *testing.T) {
	err := QuotaExceeded("usage.check", UsageMinutes, 2, 2)

	assert.Equal(t, EQUOTA, ErrorCode(err))
	q := ErrorQuota(err)
	require.NotNil(t, q)
	assert.Equal(t, int64(0), q.Remaining)
	assert.Contains(t, ErrorMessage(err), "Monthly interview minutes")
}
