package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/cache"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/repository/memory"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// apiEnv wires every JSON API handler over the in-memory store. Requests
// run as principal; a nil principal is an unauthenticated caller.
type apiEnv struct {
	store         *memory.Store
	usage         service.UsageService
	subscriptions service.SubscriptionService
	identity      service.IdentityService
	sessions      service.SessionService
	coupons       service.CouponService
	credits       service.CreditService
	analyses      service.AnalysisService

	principal *auth.Principal
	admin     bool
	mux       *http.ServeMux
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()

	store := memory.New()
	logger := discardLogger()

	usage := service.NewUsageService(store, logger)
	subs := service.NewSubscriptionService(store, logger)
	e := &apiEnv{
		store:         store,
		usage:         usage,
		subscriptions: subs,
		identity:      service.NewIdentityService(store, subs, logger),
		sessions:      service.NewSessionService(store, usage, 3*time.Minute, logger),
		coupons:       service.NewCouponService(store, logger),
		credits:       service.NewCreditService(store, logger),
		analyses:      service.NewAnalysisService(store, usage, cache.NewMemory(100, time.Hour), logger),
		mux:           http.NewServeMux(),
	}

	user, err := e.identity.Reconcile(context.Background(), domain.FullProfile{
		ExternalID: "user_" + uuid.NewString(),
		Email:      "candidate@example.com",
		FirstName:  "Sam",
		LastName:   "Rivera",
	})
	require.NoError(t, err)
	e.principal = &auth.Principal{User: user, ExternalID: user.ExternalID, TokenPlan: domain.PlanFree}

	NewUsageHandler(e.usage, logger).RegisterRoutes(e.mux, e.requireUser)
	NewSessionHandler(e.sessions, logger).RegisterRoutes(e.mux, e.requireUser)
	NewCouponHandler(e.coupons, logger).RegisterRoutes(e.mux, e.requireUser, e.requireAdmin)
	NewSubscriptionHandler(e.subscriptions, logger).RegisterRoutes(e.mux, e.requireUser)
	NewAnalysisHandler(e.analyses, logger).RegisterRoutes(e.mux, e.requireUser)
	NewUserHandler(e.identity, logger).RegisterRoutes(e.mux, e.requireUser)
	NewBillingHandler(nil, "http://localhost:8080", logger).RegisterRoutes(e.mux, e.requireUser)
	return e
}

func (e *apiEnv) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if e.principal == nil {
			UnauthorizedResponse(w, r, discardLogger())
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.SetPrincipal(r.Context(), e.principal)))
	})
}

func (e *apiEnv) requireAdmin(next http.Handler) http.Handler {
	return e.requireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !e.admin {
			ErrorResponse(w, r, discardLogger(), domain.Forbidden("test.require_admin", "Admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	}))
}

func (e *apiEnv) userID() uuid.UUID {
	return e.principal.User.ID
}

func (e *apiEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}
