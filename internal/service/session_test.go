package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionService_Start(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	sess, check, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, userID, sess.UserID)
	assert.False(t, sess.IsEnded())
	assert.Equal(t, domain.CoveredByAllowance, check.CoveredBy)

	res, err := env.usage.Check(ctx, userID, domain.UsageInterviews, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.CurrentUsage, "start commits one interview")

	// Free allows one interview per day.
	_, _, err = env.sessions.Start(ctx, userID)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, domain.UsageInterviews, domain.ErrorQuota(err).UsageType)
}

func TestSessionService_StartWithoutMinutes(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 2)
	require.NoError(t, err)

	_, _, err = env.sessions.Start(ctx, userID)
	require.Error(t, err)
	assert.Equal(t, domain.EQUOTA, domain.ErrorCode(err))
	assert.Equal(t, domain.UsageMinutes, domain.ErrorQuota(err).UsageType)

	// Credit reopens the gate.
	env.grantCredit(t, userID, 10)
	_, check, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, domain.CoveredByCredit, check.CoveredBy)
	assert.True(t, check.CreditAllowed)
}

func TestSessionService_DrawDownOrder(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)

	// 58 of 60 used leaves 2 monthly minutes.
	_, err := env.usage.Track(ctx, userID, domain.UsageMinutes, 58)
	require.NoError(t, err)
	env.grantCredit(t, userID, 20)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(15 * time.Minute)

	res, err := env.sessions.End(ctx, EndSessionParams{
		UserID:    userID,
		SessionID: sess.ID,
		Reason:    domain.EndReasonExplicit,
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyDeducted)
	assert.Equal(t, int64(15), res.Minutes)
	assert.Equal(t, int64(2), res.MonthlyDeducted)
	assert.Equal(t, int64(13), res.CreditDeducted)
	assert.Equal(t, int64(0), res.Overage)

	assert.Equal(t, int64(60), env.minutesUsed(t, userID))
	assert.Equal(t, int64(7), env.creditBalance(t, userID))

	cb, err := env.credits.Balance(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, cb.Balance, cb.LifetimePurchased-cb.LifetimeConsumed)
}

func TestSessionService_Overage(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(4*time.Minute + 10*time.Second)

	res, err := env.sessions.End(ctx, EndSessionParams{UserID: userID, SessionID: sess.ID, Reason: domain.EndReasonBeacon})
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Minutes, "partial minutes round up")
	assert.Equal(t, int64(5), res.MonthlyDeducted)
	assert.Equal(t, int64(0), res.CreditDeducted)
	assert.Equal(t, int64(3), res.Overage)
	assert.Equal(t, int64(5), env.minutesUsed(t, userID))
	assert.Equal(t, int64(0), env.creditBalance(t, userID))
}

func TestSessionService_SubSecondRemainderRoundsUp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(60*time.Second + 400*time.Millisecond)

	res, err := env.sessions.End(ctx, EndSessionParams{UserID: userID, SessionID: sess.ID, Reason: domain.EndReasonExplicit})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Minutes)
	assert.Equal(t, int64(2), env.minutesUsed(t, userID))

	got, err := env.sessions.Get(ctx, userID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(61), got.DurationSeconds)
}

func TestSessionService_ExactlyOnce(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(7 * time.Minute)

	first, err := env.sessions.Heartbeat(ctx, userID, sess.ID, true)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.False(t, first.AlreadyDeducted)
	assert.Equal(t, int64(7), first.MonthlyDeducted)

	env.clock.Advance(time.Minute)
	second, err := env.sessions.End(ctx, EndSessionParams{UserID: userID, SessionID: sess.ID, Reason: domain.EndReasonExplicit})
	require.NoError(t, err)
	assert.True(t, second.AlreadyDeducted)
	assert.Equal(t, first.MonthlyDeducted, second.MonthlyDeducted)
	assert.Equal(t, first.Minutes, second.Minutes)

	assert.Equal(t, int64(7), env.minutesUsed(t, userID))

	got, err := env.sessions.Get(ctx, userID, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EndReasonHeartbeat, got.EndReason)
	assert.True(t, got.DurationDeducted)
}

func TestSessionService_ConcurrentEndPaths(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanProfessional)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(12 * time.Minute)

	reasons := []domain.SessionEndReason{
		domain.EndReasonExplicit, domain.EndReasonHeartbeat, domain.EndReasonBeacon, domain.EndReasonStale,
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		deducted int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(reason domain.SessionEndReason) {
			defer wg.Done()
			res, err := env.sessions.Deduct(ctx, sess.ID, reason, env.clock.Now())
			assert.NoError(t, err)
			if err == nil && !res.AlreadyDeducted {
				mu.Lock()
				deducted++
				mu.Unlock()
			}
		}(reasons[i%len(reasons)])
	}
	wg.Wait()

	assert.Equal(t, 1, deducted)
	assert.Equal(t, int64(12), env.minutesUsed(t, userID))
}

func TestSessionService_Ownership(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	owner := env.newUser(t)
	other := env.newUser(t)

	sess, _, err := env.sessions.Start(ctx, owner)
	require.NoError(t, err)

	_, err = env.sessions.End(ctx, EndSessionParams{UserID: other, SessionID: sess.ID, Reason: domain.EndReasonExplicit})
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = env.sessions.Heartbeat(ctx, other, sess.ID, false)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))

	_, err = env.sessions.Deduct(ctx, uuid.New(), domain.EndReasonExplicit, env.clock.Now())
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestSessionService_InvalidReason(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)

	_, err = env.sessions.End(ctx, EndSessionParams{UserID: userID, SessionID: sess.ID, Reason: "timeout"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}

func TestSessionService_SweepStale(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)
	env.setPlan(t, userID, domain.PlanStarter)

	abandoned, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)

	env.clock.Advance(90 * time.Second)
	res, err := env.sessions.Heartbeat(ctx, userID, abandoned.ID, false)
	require.NoError(t, err)
	assert.Nil(t, res)

	live, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)

	// The abandoned session misses every heartbeat from here on.
	env.clock.Advance(4 * time.Minute)
	_, err = env.sessions.Heartbeat(ctx, userID, live.ID, false)
	require.NoError(t, err)

	n, err := env.sessions.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := env.sessions.Get(ctx, userID, abandoned.ID)
	require.NoError(t, err)
	assert.True(t, got.IsEnded())
	assert.Equal(t, domain.EndReasonStale, got.EndReason)
	assert.Equal(t, int64(90), got.DurationSeconds, "charged up to the last heartbeat")
	assert.Equal(t, int64(2), got.MonthlyDeducted)

	still, err := env.sessions.Get(ctx, userID, live.ID)
	require.NoError(t, err)
	assert.False(t, still.IsEnded())

	n, err = env.sessions.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSessionService_HeartbeatAfterEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	userID := env.newUser(t)

	sess, _, err := env.sessions.Start(ctx, userID)
	require.NoError(t, err)
	env.clock.Advance(time.Minute)

	_, err = env.sessions.End(ctx, EndSessionParams{UserID: userID, SessionID: sess.ID, Reason: domain.EndReasonExplicit})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	res, err := env.sessions.Heartbeat(ctx, userID, sess.ID, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.AlreadyDeducted)
	assert.Equal(t, int64(1), env.minutesUsed(t, userID))
}
