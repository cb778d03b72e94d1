package service

import (
	"context"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionService_TransitionPreservesUsage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)

	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 50)
	require.NoError(t, err)

	state, err := env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanProfessional})
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionUpgrade, state.Transition)
	assert.True(t, state.Applied)
	assert.Equal(t, domain.PlanProfessional, state.PlanKey)

	res, err := env.usage.Check(ctx, userID, domain.UsageMinutes, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.CurrentUsage)
	assert.Equal(t, domain.LimitsFor(domain.PlanProfessional).MinutesPerMonth, res.LimitValue)

	// A downgrade below current usage leaves the counter alone and closes
	// the gate.
	state, err = env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanFree})
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionDowngrade, state.Transition)

	res, err = env.usage.Check(ctx, userID, domain.UsageMinutes, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(50), res.CurrentUsage)
	assert.False(t, res.Allowed)
}

func TestSubscriptionService_Cancel(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanPremium)

	state, err := env.subscriptions.Transition(ctx, domain.TransitionParams{
		UserID:  userID,
		PlanKey: domain.PlanPremium,
		Cancel:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionCancel, state.Transition)
	assert.Equal(t, domain.PlanFree, state.PlanKey)
	assert.Equal(t, domain.SubscriptionActive, state.Status)
	assert.Equal(t, "Free", state.Plan.Name)
}

func TestSubscriptionService_StaleEventIgnored(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	newer := env.clock.Now()
	older := newer.Add(-time.Hour)

	state, err := env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanProfessional, EventAt: &newer})
	require.NoError(t, err)
	require.True(t, state.Applied)

	state, err = env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanStarter, EventAt: &older})
	require.NoError(t, err)
	assert.False(t, state.Applied)
	assert.Equal(t, domain.PlanProfessional, state.PlanKey)
}

func TestSubscriptionService_DirectFallback(t *testing.T) {
	ctx := context.Background()
	store := &failingProcedureStore{Store: memory.New()}
	env := newTestEnvWithStore(t, store)
	userID := env.newUser(t)

	state, err := env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanStarter})
	require.NoError(t, err)
	assert.Equal(t, 1, store.calls)
	assert.True(t, state.Applied)
	assert.Equal(t, domain.PlanStarter, state.PlanKey)

	// The fallback applies the same staleness rule.
	now := env.clock.Now()
	older := now.Add(-time.Minute)
	_, err = env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanPremium, EventAt: &now})
	require.NoError(t, err)
	state, err = env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: userID, PlanKey: domain.PlanFree, EventAt: &older})
	require.NoError(t, err)
	assert.False(t, state.Applied)
	assert.Equal(t, domain.PlanPremium, state.PlanKey)
}

func TestSubscriptionService_BothPathsFail(t *testing.T) {
	ctx := context.Background()
	store := &failingProcedureStore{Store: memory.New()}
	env := newTestEnvWithStore(t, store)

	// Unknown user: the direct write fails on the foreign key too.
	_, err := env.subscriptions.Transition(ctx, domain.TransitionParams{UserID: uuid.New(), PlanKey: domain.PlanStarter})
	require.Error(t, err)
	assert.Equal(t, domain.EUPSTREAM, domain.ErrorCode(err))
}

func TestSubscriptionService_Validation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	start := env.clock.Now()
	end := start.Add(-time.Hour)

	tests := []struct {
		name   string
		params domain.TransitionParams
	}{
		{name: "missing user", params: domain.TransitionParams{PlanKey: domain.PlanStarter}},
		{name: "unknown plan", params: domain.TransitionParams{UserID: userID, PlanKey: "enterprise"}},
		{name: "half period", params: domain.TransitionParams{UserID: userID, PlanKey: domain.PlanStarter, PeriodStart: &start}},
		{name: "inverted period", params: domain.TransitionParams{UserID: userID, PlanKey: domain.PlanStarter, PeriodStart: &start, PeriodEnd: &end}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.subscriptions.Transition(ctx, tt.params)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
		})
	}
}

func TestSubscriptionService_GetDefaultsToFree(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	state, err := env.subscriptions.Get(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, state.PlanKey)
	assert.Equal(t, domain.SubscriptionActive, state.Status)
	assert.Equal(t, int64(2), state.Plan.Limits.MinutesPerMonth)
}
