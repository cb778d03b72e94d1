// Package memory is an in-process repository.Store. Every statement runs
// under one mutex, so increments and check-and-set updates are atomic the
// same way the Postgres statements are. ExecTx serializes transactions and
// restores a snapshot on error.
//
// Writes made outside a transaction while another transaction is rolling
// back are lost with the rollback. Tests that need that isolation should run
// both sides through ExecTx.
package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type usageKey struct {
	userID      uuid.UUID
	usageType   string
	periodStart int64
}

type redemptionKey struct {
	userID uuid.UUID
	code   string
}

type webhookKey struct {
	provider string
	eventID  string
}

type state struct {
	users         map[uuid.UUID]repository.User
	usersByExt    map[string]uuid.UUID
	subscriptions map[uuid.UUID]repository.Subscription
	usage         map[usageKey]repository.UsageRecord
	credits       map[uuid.UUID]repository.CreditBalance
	coupons       map[string]repository.Coupon
	redemptions   map[redemptionKey]repository.CouponRedemption
	sessions      map[uuid.UUID]repository.InterviewSession
	webhooks      map[webhookKey]repository.WebhookEvent
	jobs          map[uuid.UUID]repository.Job
	analyses      map[uuid.UUID]repository.AnalysisResult
}

func newState() *state {
	return &state{
		users:         make(map[uuid.UUID]repository.User),
		usersByExt:    make(map[string]uuid.UUID),
		subscriptions: make(map[uuid.UUID]repository.Subscription),
		usage:         make(map[usageKey]repository.UsageRecord),
		credits:       make(map[uuid.UUID]repository.CreditBalance),
		coupons:       make(map[string]repository.Coupon),
		redemptions:   make(map[redemptionKey]repository.CouponRedemption),
		sessions:      make(map[uuid.UUID]repository.InterviewSession),
		webhooks:      make(map[webhookKey]repository.WebhookEvent),
		jobs:          make(map[uuid.UUID]repository.Job),
		analyses:      make(map[uuid.UUID]repository.AnalysisResult),
	}
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:         cloneMap(s.users),
		usersByExt:    cloneMap(s.usersByExt),
		subscriptions: cloneMap(s.subscriptions),
		usage:         cloneMap(s.usage),
		credits:       cloneMap(s.credits),
		coupons:       cloneMap(s.coupons),
		redemptions:   cloneMap(s.redemptions),
		sessions:      cloneMap(s.sessions),
		webhooks:      cloneMap(s.webhooks),
		jobs:          cloneMap(s.jobs),
		analyses:      cloneMap(s.analyses),
	}
}

// Store implements repository.Store in memory.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state

	// Now is the store's clock for defaulted timestamps.
	Now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		st:  newState(),
		Now: time.Now,
	}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) now() time.Time {
	return s.Now().UTC()
}

// ExecTx runs fn with the store itself as the Querier. Transactions do not
// overlap each other.
func (s *Store) ExecTx(ctx context.Context, fn func(repository.Querier) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

// Users

func (s *Store) UpsertUserFull(ctx context.Context, arg repository.UpsertUserFullParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.userByExt(arg.ExternalID)
	if !ok {
		u = repository.User{ID: uuid.New(), ExternalID: arg.ExternalID, CreatedAt: now}
	}
	u.Email = arg.Email
	u.FirstName = arg.FirstName
	u.LastName = arg.LastName
	u.DisplayName = arg.DisplayName
	u.ImageUrl = arg.ImageUrl
	u.UpdatedAt = now
	s.putUser(u)
	return u, nil
}

func (s *Store) UpsertUserPartial(ctx context.Context, arg repository.UpsertUserPartialParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.userByExt(arg.ExternalID)
	if !ok {
		u = repository.User{ID: uuid.New(), ExternalID: arg.ExternalID, DisplayName: arg.Email, CreatedAt: now}
	}
	u.Email = arg.Email
	u.UpdatedAt = now
	s.putUser(u)
	return u, nil
}

func (s *Store) CreateUserMinimal(ctx context.Context, arg repository.CreateUserMinimalParams) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.userByExt(arg.ExternalID)
	if !ok {
		now := s.now()
		u = repository.User{ID: uuid.New(), ExternalID: arg.ExternalID, CreatedAt: now, UpdatedAt: now}
	}
	if u.Email == "" {
		u.Email = arg.Email
	}
	s.putUser(u)
	return u, nil
}

func (s *Store) GetUserByExternalID(ctx context.Context, externalID string) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.userByExt(externalID)
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (repository.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.st.users[id]
	if !ok {
		return repository.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (s *Store) userByExt(externalID string) (repository.User, bool) {
	id, ok := s.st.usersByExt[externalID]
	if !ok {
		return repository.User{}, false
	}
	u, ok := s.st.users[id]
	return u, ok
}

func (s *Store) putUser(u repository.User) {
	s.st.users[u.ID] = u
	s.st.usersByExt[u.ExternalID] = u.ID
}

// Subscriptions

func (s *Store) EnsureSubscription(ctx context.Context, arg repository.EnsureSubscriptionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[arg.UserID]; !ok {
		return errForeignKey
	}
	if _, ok := s.st.subscriptions[arg.UserID]; ok {
		return nil
	}
	now := s.now()
	s.st.subscriptions[arg.UserID] = repository.Subscription{
		UserID:             arg.UserID,
		PlanKey:            "free",
		Status:             "active",
		CurrentPeriodStart: sql.NullTime{Time: arg.PeriodStart, Valid: true},
		CurrentPeriodEnd:   sql.NullTime{Time: arg.PeriodEnd, Valid: true},
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	return nil
}

func (s *Store) CallUpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[arg.UserID]; !ok {
		return "", errForeignKey
	}
	if _, ok := s.upsertSubscription(arg); !ok {
		return "stale", nil
	}
	return "ok", nil
}

func (s *Store) UpsertSubscription(ctx context.Context, arg repository.UpsertSubscriptionParams) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[arg.UserID]; !ok {
		return repository.Subscription{}, errForeignKey
	}
	sub, ok := s.upsertSubscription(arg)
	if !ok {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return sub, nil
}

func (s *Store) upsertSubscription(arg repository.UpsertSubscriptionParams) (repository.Subscription, bool) {
	now := s.now()
	sub, exists := s.st.subscriptions[arg.UserID]
	if exists && sub.SourceEventAt.Valid && arg.SourceEventAt.Valid &&
		arg.SourceEventAt.Time.Before(sub.SourceEventAt.Time) {
		return sub, false
	}
	if !exists {
		sub = repository.Subscription{UserID: arg.UserID, CreatedAt: now}
	}
	sub.PlanKey = arg.PlanKey
	sub.Status = arg.Status
	sub.CurrentPeriodStart = sql.NullTime{Time: arg.PeriodStart, Valid: true}
	sub.CurrentPeriodEnd = sql.NullTime{Time: arg.PeriodEnd, Valid: true}
	if arg.SourceEventAt.Valid {
		sub.SourceEventAt = arg.SourceEventAt
	}
	sub.UpdatedAt = now
	s.st.subscriptions[arg.UserID] = sub
	return sub, true
}

func (s *Store) GetSubscription(ctx context.Context, userID uuid.UUID) (repository.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.st.subscriptions[userID]
	if !ok {
		return repository.Subscription{}, sql.ErrNoRows
	}
	return sub, nil
}

// Usage ledger

func keyOf(arg repository.UsageKeyParams) usageKey {
	return usageKey{userID: arg.UserID, usageType: arg.UsageType, periodStart: arg.PeriodStart.UnixNano()}
}

func (s *Store) EnsureUsageRecord(ctx context.Context, arg repository.UsageKeyParams) (repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := keyOf(arg)
	if rec, ok := s.st.usage[k]; ok {
		return rec, nil
	}
	now := s.now()
	rec := repository.UsageRecord{
		ID:          uuid.New(),
		UserID:      arg.UserID,
		UsageType:   arg.UsageType,
		PeriodStart: arg.PeriodStart,
		PeriodEnd:   arg.PeriodEnd,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.st.usage[k] = rec
	return rec, nil
}

func (s *Store) GetUsageRecord(ctx context.Context, arg repository.UsageKeyParams) (repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.st.usage[keyOf(arg)]
	if !ok {
		return repository.UsageRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (s *Store) GetActiveUsageRecord(ctx context.Context, arg repository.GetActiveUsageRecordParams) (repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		best  repository.UsageRecord
		found bool
	)
	for _, rec := range s.st.usage {
		if rec.UserID != arg.UserID || rec.UsageType != arg.UsageType {
			continue
		}
		if rec.PeriodStart.After(arg.At) || !rec.PeriodEnd.After(arg.At) {
			continue
		}
		if !found || rec.PeriodStart.After(best.PeriodStart) {
			best, found = rec, true
		}
	}
	if !found {
		return repository.UsageRecord{}, sql.ErrNoRows
	}
	return best, nil
}

func (s *Store) IncrementUsage(ctx context.Context, arg repository.IncrementUsageParams) (repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if arg.Amount < 0 {
		return repository.UsageRecord{}, errCheckViolation
	}
	now := s.now()
	k := keyOf(arg.UsageKeyParams)
	rec, ok := s.st.usage[k]
	if !ok {
		rec = repository.UsageRecord{
			ID:          uuid.New(),
			UserID:      arg.UserID,
			UsageType:   arg.UsageType,
			PeriodStart: arg.PeriodStart,
			PeriodEnd:   arg.PeriodEnd,
			CreatedAt:   now,
		}
	}
	rec.Count += arg.Amount
	rec.UpdatedAt = now
	s.st.usage[k] = rec
	return rec, nil
}

func (s *Store) ListUsageRecords(ctx context.Context, arg repository.ListUsageRecordsParams) ([]repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := make(map[string]bool, len(arg.UsageTypes))
	for _, t := range arg.UsageTypes {
		want[t] = true
	}
	var items []repository.UsageRecord
	for _, rec := range s.st.usage {
		if rec.UserID == arg.UserID && want[rec.UsageType] && rec.PeriodEnd.After(arg.Since) {
			items = append(items, rec)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].PeriodStart.Equal(items[j].PeriodStart) {
			return items[i].PeriodStart.After(items[j].PeriodStart)
		}
		return items[i].UsageType < items[j].UsageType
	})
	return items, nil
}

// Credit

func (s *Store) GetCreditBalance(ctx context.Context, userID uuid.UUID) (repository.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.st.credits[userID]
	if !ok {
		return repository.CreditBalance{}, sql.ErrNoRows
	}
	return cb, nil
}

func (s *Store) AddCredit(ctx context.Context, arg repository.AddCreditParams) (repository.CreditBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if arg.Minutes < 0 {
		return repository.CreditBalance{}, errCheckViolation
	}
	if _, ok := s.st.users[arg.UserID]; !ok {
		return repository.CreditBalance{}, errForeignKey
	}
	cb := s.st.credits[arg.UserID]
	cb.UserID = arg.UserID
	cb.Balance += arg.Minutes
	cb.LifetimePurchased += arg.Minutes
	cb.UpdatedAt = s.now()
	s.st.credits[arg.UserID] = cb
	return cb, nil
}

func (s *Store) DrawCredit(ctx context.Context, arg repository.DrawCreditParams) (repository.DrawCreditRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cb, ok := s.st.credits[arg.UserID]
	if !ok {
		return repository.DrawCreditRow{}, sql.ErrNoRows
	}
	drawn := min(cb.Balance, arg.Minutes)
	if drawn < 0 {
		drawn = 0
	}
	cb.Balance -= drawn
	cb.LifetimeConsumed += drawn
	cb.UpdatedAt = s.now()
	s.st.credits[arg.UserID] = cb
	return repository.DrawCreditRow{Drawn: drawn, Balance: cb.Balance}, nil
}

// Coupons

func (s *Store) CreateCoupon(ctx context.Context, arg repository.CreateCouponParams) (repository.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.coupons[arg.Code]; ok {
		return repository.Coupon{}, errUniqueViolation
	}
	c := repository.Coupon{
		Code:           arg.Code,
		Minutes:        arg.Minutes,
		Active:         arg.Active,
		ExpiresAt:      arg.ExpiresAt,
		MaxRedemptions: arg.MaxRedemptions,
		CreatedAt:      s.now(),
	}
	s.st.coupons[arg.Code] = c
	return c, nil
}

func (s *Store) GetCouponForUpdate(ctx context.Context, code string) (repository.Coupon, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.st.coupons[code]
	if !ok {
		return repository.Coupon{}, sql.ErrNoRows
	}
	return c, nil
}

func (s *Store) InsertCouponRedemption(ctx context.Context, arg repository.InsertCouponRedemptionParams) (repository.CouponRedemption, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := redemptionKey{userID: arg.UserID, code: arg.Code}
	if _, ok := s.st.redemptions[k]; ok {
		return repository.CouponRedemption{}, sql.ErrNoRows
	}
	r := repository.CouponRedemption{
		UserID:     arg.UserID,
		Code:       arg.Code,
		Minutes:    arg.Minutes,
		RedeemedAt: s.now(),
	}
	s.st.redemptions[k] = r
	return r, nil
}

func (s *Store) IncrementCouponRedemptions(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.st.coupons[code]; ok {
		c.RedemptionCount++
		s.st.coupons[code] = c
	}
	return nil
}

// Interview sessions

func (s *Store) CreateInterviewSession(ctx context.Context, arg repository.CreateInterviewSessionParams) (repository.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.users[arg.UserID]; !ok {
		return repository.InterviewSession{}, errForeignKey
	}
	sess := repository.InterviewSession{
		ID:              uuid.New(),
		UserID:          arg.UserID,
		StartedAt:       arg.StartedAt,
		LastHeartbeatAt: arg.StartedAt,
	}
	s.st.sessions[sess.ID] = sess
	return sess, nil
}

func (s *Store) GetInterviewSession(ctx context.Context, id uuid.UUID) (repository.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.st.sessions[id]
	if !ok {
		return repository.InterviewSession{}, sql.ErrNoRows
	}
	return sess, nil
}

func (s *Store) TouchInterviewSession(ctx context.Context, arg repository.TouchInterviewSessionParams) (repository.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.st.sessions[arg.ID]
	if !ok || sess.EndedAt.Valid || sess.DurationDeducted {
		return repository.InterviewSession{}, sql.ErrNoRows
	}
	if arg.At.After(sess.LastHeartbeatAt) {
		sess.LastHeartbeatAt = arg.At
	}
	s.st.sessions[arg.ID] = sess
	return sess, nil
}

func (s *Store) ClaimSessionDeduction(ctx context.Context, arg repository.ClaimSessionDeductionParams) (repository.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.st.sessions[arg.ID]
	if !ok || sess.DurationDeducted {
		return repository.InterviewSession{}, sql.ErrNoRows
	}
	sess.DurationDeducted = true
	if !sess.EndedAt.Valid {
		sess.EndedAt = sql.NullTime{Time: arg.EndedAt, Valid: true}
	}
	if sess.EndReason == "" {
		sess.EndReason = arg.EndReason
	}
	// Partial seconds round up so the minute ceiling sees them.
	secs := math.Ceil(sess.EndedAt.Time.Sub(sess.StartedAt).Seconds())
	if secs < 0 {
		secs = 0
	}
	sess.DurationSeconds = sql.NullInt64{Int64: int64(secs), Valid: true}
	s.st.sessions[arg.ID] = sess
	return sess, nil
}

func (s *Store) RecordSessionDeduction(ctx context.Context, arg repository.RecordSessionDeductionParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.st.sessions[arg.ID]; ok {
		sess.MonthlyDeducted = arg.MonthlyDeducted
		sess.CreditDeducted = arg.CreditDeducted
		s.st.sessions[arg.ID] = sess
	}
	return nil
}

func (s *Store) SetSessionTranscript(ctx context.Context, arg repository.SetSessionTranscriptParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.st.sessions[arg.ID]; ok {
		sess.Transcript = arg.Transcript
		s.st.sessions[arg.ID] = sess
	}
	return nil
}

func (s *Store) ListStaleSessions(ctx context.Context, arg repository.ListStaleSessionsParams) ([]repository.InterviewSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []repository.InterviewSession
	for _, sess := range s.st.sessions {
		if !sess.DurationDeducted && sess.LastHeartbeatAt.Before(arg.Before) {
			items = append(items, sess)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].LastHeartbeatAt.Before(items[j].LastHeartbeatAt)
	})
	if arg.Limit > 0 && len(items) > int(arg.Limit) {
		items = items[:arg.Limit]
	}
	return items, nil
}

// Webhooks

func (s *Store) InsertWebhookEvent(ctx context.Context, arg repository.InsertWebhookEventParams) (repository.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := webhookKey{provider: arg.Provider, eventID: arg.EventID}
	if _, ok := s.st.webhooks[k]; ok {
		return repository.WebhookEvent{}, sql.ErrNoRows
	}
	ev := repository.WebhookEvent{
		Provider:   arg.Provider,
		EventID:    arg.EventID,
		EventType:  arg.EventType,
		Payload:    pqtype.NullRawMessage{RawMessage: append(json.RawMessage(nil), arg.Payload.RawMessage...), Valid: arg.Payload.Valid},
		ReceivedAt: s.now(),
	}
	s.st.webhooks[k] = ev
	return ev, nil
}

// Jobs

func (s *Store) EnqueueJob(ctx context.Context, arg repository.EnqueueJobParams) (repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if arg.DedupeKey.Valid {
		if _, ok := s.activeJob(arg.DedupeKey.String); ok {
			return repository.Job{}, errUniqueViolation
		}
	}

	now := s.now()
	job := repository.Job{
		ID:          uuid.New(),
		JobType:     arg.JobType,
		Payload:     append(json.RawMessage(nil), arg.Payload...),
		Status:      "pending",
		MaxAttempts: arg.MaxAttempts,
		Priority:    arg.Priority,
		ScheduledAt: arg.ScheduledAt,
		CreatedAt:   now,
		DedupeKey:   arg.DedupeKey,
	}
	s.st.jobs[job.ID] = job
	return job, nil
}

func (s *Store) GetActiveJobByDedupeKey(ctx context.Context, dedupeKey string) (repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.activeJob(dedupeKey); ok {
		return j, nil
	}
	return repository.Job{}, sql.ErrNoRows
}

// activeJob mirrors idx_jobs_active_dedupe. Callers hold s.mu.
func (s *Store) activeJob(dedupeKey string) (repository.Job, bool) {
	for _, j := range s.st.jobs {
		if j.DedupeKey.Valid && j.DedupeKey.String == dedupeKey &&
			(j.Status == "pending" || j.Status == "running") {
			return j, true
		}
	}
	return repository.Job{}, false
}

func (s *Store) DequeueJob(ctx context.Context) (repository.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var best *repository.Job
	for _, j := range s.st.jobs {
		if j.Status != "pending" || j.ScheduledAt.After(now) {
			continue
		}
		if best == nil || j.Priority > best.Priority ||
			(j.Priority == best.Priority && j.ScheduledAt.Before(best.ScheduledAt)) {
			j := j
			best = &j
		}
	}
	if best == nil {
		return repository.Job{}, sql.ErrNoRows
	}
	return *best, nil
}

func (s *Store) UpdateJobStarted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.st.jobs[id]; ok {
		j.Status = "running"
		j.StartedAt = sql.NullTime{Time: s.now(), Valid: true}
		j.Attempts++
		s.st.jobs[id] = j
	}
	return nil
}

func (s *Store) UpdateJobCompleted(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if j, ok := s.st.jobs[id]; ok {
		j.Status = "completed"
		j.CompletedAt = sql.NullTime{Time: s.now(), Valid: true}
		j.ErrorMessage = sql.NullString{}
		s.st.jobs[id] = j
	}
	return nil
}

func (s *Store) UpdateJobFailed(ctx context.Context, arg repository.UpdateJobFailedParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.st.jobs[arg.ID]
	if !ok {
		return nil
	}
	now := s.now()
	j.ErrorMessage = arg.ErrorMessage
	if arg.Permanent || j.Attempts >= j.MaxAttempts {
		j.Status = "failed"
		j.CompletedAt = sql.NullTime{Time: now, Valid: true}
	} else {
		j.Status = "pending"
		j.ScheduledAt = now.Add(time.Duration(1<<j.Attempts) * 30 * time.Second)
	}
	s.st.jobs[arg.ID] = j
	return nil
}

func (s *Store) RecoverStaleJobs(ctx context.Context, thresholdSeconds float64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-time.Duration(thresholdSeconds * float64(time.Second)))
	var n int64
	for id, j := range s.st.jobs {
		if j.Status == "running" && j.StartedAt.Valid && j.StartedAt.Time.Before(cutoff) {
			j.Status = "pending"
			j.StartedAt = sql.NullTime{}
			s.st.jobs[id] = j
			n++
		}
	}
	return n, nil
}

// Job returns a job by ID for test assertions.
func (s *Store) Job(id uuid.UUID) (repository.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.st.jobs[id]
	return j, ok
}

// Analyses

func (s *Store) InsertAnalysisResult(ctx context.Context, arg repository.InsertAnalysisResultParams) (repository.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.st.analyses[arg.SessionID]; ok {
		return repository.AnalysisResult{}, sql.ErrNoRows
	}
	r := repository.AnalysisResult{
		SessionID: arg.SessionID,
		UserID:    arg.UserID,
		Result:    append(json.RawMessage(nil), arg.Result...),
		CreatedAt: s.now(),
	}
	s.st.analyses[arg.SessionID] = r
	return r, nil
}

func (s *Store) GetAnalysisResult(ctx context.Context, sessionID uuid.UUID) (repository.AnalysisResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.st.analyses[sessionID]
	if !ok {
		return repository.AnalysisResult{}, sql.ErrNoRows
	}
	return r, nil
}
