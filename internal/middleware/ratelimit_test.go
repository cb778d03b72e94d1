package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeClock lets tests move a limiter's window forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(max int, window time.Duration) (*RateLimiter, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(max, window, nil, newTestLogger())
	rl.now = clock.Now
	return rl, clock
}

func allow(rl *RateLimiter, key string) bool {
	return rl.Allow(context.Background(), key).Allowed
}

// =============================================================================
// RateLimiter Tests
// =============================================================================

func TestRateLimiter_Allow_UnderLimit(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		d := rl.Allow(context.Background(), "user:a")
		if !d.Allowed {
			t.Errorf("request %d should be allowed", i+1)
		}
		if d.Remaining != 4-i {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, 4-i)
		}
	}
}

func TestRateLimiter_Allow_AtLimit(t *testing.T) {
	rl, _ := newTestLimiter(5, time.Minute)

	for i := 0; i < 5; i++ {
		allow(rl, "user:a")
	}

	if allow(rl, "user:a") {
		t.Error("6th request should be denied")
	}
}

func TestRateLimiter_Allow_SeparateKeys(t *testing.T) {
	rl, _ := newTestLimiter(2, time.Minute)

	allow(rl, "user:a")
	allow(rl, "user:a")
	if allow(rl, "user:a") {
		t.Error("user a should be rate limited")
	}

	if !allow(rl, "user:b") {
		t.Error("user b should have its own limit")
	}
}

func TestRateLimiter_Refill(t *testing.T) {
	rl, clock := newTestLimiter(1, time.Minute)

	if !allow(rl, "user:a") {
		t.Fatal("first request should be allowed")
	}
	d := rl.Allow(context.Background(), "user:a")
	if d.Allowed {
		t.Fatal("second request should be denied")
	}
	if d.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", d.RetryAfter)
	}

	clock.Advance(30 * time.Second)
	d = rl.Allow(context.Background(), "user:a")
	if d.Allowed {
		t.Fatal("half a window should not refill a token")
	}
	if diff := d.RetryAfter - 30*time.Second; diff < -time.Millisecond || diff > time.Millisecond {
		t.Errorf("RetryAfter = %v, want about 30s", d.RetryAfter)
	}

	clock.Advance(30 * time.Second)
	if !allow(rl, "user:a") {
		t.Error("request after a full window should be allowed")
	}
}

func TestRateLimiter_Sweep(t *testing.T) {
	rl, clock := newTestLimiter(1, time.Minute)
	allow(rl, "user:a")
	clock.Advance(30 * time.Second)
	allow(rl, "user:b")

	clock.Advance(45 * time.Second)
	rl.sweep()

	if got := rl.size(); got != 1 {
		t.Errorf("buckets after sweep = %d, want 1", got)
	}
}

func TestRateLimiter_RunStops(t *testing.T) {
	rl := NewRateLimiter(1, time.Millisecond, nil, newTestLogger())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(50, time.Minute)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if allow(rl, "user:a") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 50 {
		t.Errorf("allowed = %d, want 50", allowed)
	}
}

func TestRateLimiter_RedisDownFallsBackToLocal(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rl := NewRateLimiter(2, time.Minute, rdb, newTestLogger())
	rl.now = clock.Now

	if !allow(rl, "user:a") || !allow(rl, "user:a") {
		t.Fatal("requests within the limit should be allowed")
	}
	if allow(rl, "user:a") {
		t.Error("local bucket should enforce the limit while redis is unreachable")
	}
	if rl.size() != 1 {
		t.Errorf("local buckets = %d, want 1", rl.size())
	}
}

// =============================================================================
// Middleware Tests
// =============================================================================

func withUser(r *http.Request, id uuid.UUID) *http.Request {
	ctx := auth.SetPrincipal(r.Context(), &auth.Principal{User: &domain.User{ID: id}})
	return r.WithContext(ctx)
}

func TestRateLimitMiddleware_PerUser(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	mw := NewRateLimitMiddleware(rl, newTestLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	alice, bob := uuid.New(), uuid.New()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/api/usage", nil), alice))
	if rec.Code != http.StatusOK {
		t.Fatalf("first request status = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/api/usage", nil), alice))
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Code != domain.ERATELIMIT {
		t.Errorf("error code = %q, want %q", body.Error.Code, domain.ERATELIMIT)
	}

	// Same IP, different user.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, withUser(httptest.NewRequest("GET", "/api/usage", nil), bob))
	if rec.Code != http.StatusOK {
		t.Errorf("other user status = %d, want 200", rec.Code)
	}
}

func TestRateLimitMiddleware_AnonymousByIP(t *testing.T) {
	rl, _ := newTestLimiter(1, time.Minute)
	mw := NewRateLimitMiddleware(rl, newTestLogger())
	h := mw.Limit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	req := httptest.NewRequest("GET", "/api/usage", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	h.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}

	other := httptest.NewRequest("GET", "/api/usage", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, other)
	if rec.Code != http.StatusOK {
		t.Errorf("other IP status = %d, want 200", rec.Code)
	}
}

// =============================================================================
// getClientIP Tests
// =============================================================================

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		headers    map[string]string
		remoteAddr string
		want       string
	}{
		{"remote addr with port", nil, "192.168.1.1:12345", "192.168.1.1"},
		{"remote addr without port", nil, "192.168.1.1", "192.168.1.1"},
		{"x-forwarded-for single", map[string]string{"X-Forwarded-For": "203.0.113.1"}, "10.0.0.1:1", "203.0.113.1"},
		{"x-forwarded-for chain", map[string]string{"X-Forwarded-For": "203.0.113.1, 70.41.3.18"}, "10.0.0.1:1", "203.0.113.1"},
		{"x-real-ip", map[string]string{"X-Real-IP": " 203.0.113.7 "}, "10.0.0.1:1", "203.0.113.7"},
		{"forwarded wins over real ip", map[string]string{"X-Forwarded-For": "203.0.113.1", "X-Real-IP": "203.0.113.7"}, "10.0.0.1:1", "203.0.113.1"},
		{"ipv6", nil, "[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := getClientIP(req); got != tt.want {
				t.Errorf("getClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
