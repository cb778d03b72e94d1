package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/cache"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/DukeRupert/hireready/internal/repository/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testClock is a settable clock shared by every service in a testEnv.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	store         *memory.Store
	clock         *testClock
	usage         *usageService
	subscriptions *subscriptionService
	identity      *identityService
	sessions      *sessionService
	coupons       *couponService
	credits       *creditService
	analyses      *analysisService
	cache         *cache.MemoryCache
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithStore(t, memory.New())
}

// newTestEnvWithStore builds the services over store. store is usually the
// memory store, possibly wrapped to inject failures.
func newTestEnvWithStore(t *testing.T, store repository.Store) *testEnv {
	t.Helper()

	clock := &testClock{t: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
	mem := unwrapMemory(store)
	mem.Now = clock.Now

	logger := discardLogger()
	c := cache.NewMemory(100, time.Hour)

	usage := NewUsageService(store, logger).(*usageService)
	usage.now = clock.Now
	subs := NewSubscriptionService(store, logger).(*subscriptionService)
	subs.now = clock.Now
	sessions := NewSessionService(store, usage, 3*time.Minute, logger).(*sessionService)
	sessions.now = clock.Now
	coupons := NewCouponService(store, logger).(*couponService)
	coupons.now = clock.Now

	return &testEnv{
		store:         mem,
		clock:         clock,
		usage:         usage,
		subscriptions: subs,
		identity:      NewIdentityService(store, subs, logger).(*identityService),
		sessions:      sessions,
		coupons:       coupons,
		credits:       NewCreditService(store, logger).(*creditService),
		analyses:      NewAnalysisService(store, usage, c, logger).(*analysisService),
		cache:         c,
	}
}

func unwrapMemory(s repository.Store) *memory.Store {
	switch v := s.(type) {
	case *memory.Store:
		return v
	case *failingProcedureStore:
		return v.Store
	}
	panic("unsupported test store")
}

// newUser reconciles a fresh user, which also creates the free subscription.
func (e *testEnv) newUser(t *testing.T) uuid.UUID {
	t.Helper()
	u, err := e.identity.Reconcile(context.Background(), domain.FullProfile{
		ExternalID: "user_" + uuid.NewString(),
		Email:      "candidate@example.com",
		FirstName:  "Sam",
		LastName:   "Rivera",
	})
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) setPlan(t *testing.T, userID uuid.UUID, plan domain.PlanKey) {
	t.Helper()
	_, err := e.subscriptions.Transition(context.Background(), domain.TransitionParams{
		UserID:  userID,
		PlanKey: plan,
	})
	require.NoError(t, err)
}

func (e *testEnv) grantCredit(t *testing.T, userID uuid.UUID, minutes int64) {
	t.Helper()
	_, err := e.store.AddCredit(context.Background(), repository.AddCreditParams{UserID: userID, Minutes: minutes})
	require.NoError(t, err)
}

func (e *testEnv) minutesUsed(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	res, err := e.usage.Check(context.Background(), userID, domain.UsageMinutes, 0)
	require.NoError(t, err)
	return res.CurrentUsage
}

func (e *testEnv) creditBalance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	cb, err := e.credits.Balance(context.Background(), userID)
	require.NoError(t, err)
	return cb.Balance
}

// failingProcedureStore fails the stored-procedure path so the direct
// fallback runs.
type failingProcedureStore struct {
	*memory.Store
	calls int
}

func (s *failingProcedureStore) CallUpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (string, error) {
	s.calls++
	return "", errProcedureDown
}

var errProcedureDown = errors.New("function upsert_subscription does not exist")
