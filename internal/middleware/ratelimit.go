package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/handler"
	"github.com/DukeRupert/hireready/internal/metrics"
	redis_rate "github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// =============================================================================
// Rate Limiter
// =============================================================================

// Decision is the outcome of one rate limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter allows maxRequests per window per key. With a Redis client the
// budget is shared across instances through redis_rate; without one, or
// while Redis is failing, each key gets an in-process token bucket.
type RateLimiter struct {
	limit  redis_rate.Limit
	redis  *redis_rate.Limiter
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	local map[string]*localBucket
}

type localBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter. rdb may be nil.
func NewRateLimiter(maxRequests int, window time.Duration, rdb *redis.Client, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit: redis_rate.Limit{
			Rate:   maxRequests,
			Burst:  maxRequests,
			Period: window,
		},
		logger: logger,
		now:    time.Now,
		local:  make(map[string]*localBucket),
	}
	if rdb != nil {
		rl.redis = redis_rate.NewLimiter(rdb)
	}
	return rl
}

// Allow spends one request for key.
func (rl *RateLimiter) Allow(ctx context.Context, key string) Decision {
	if rl.redis != nil {
		res, err := rl.redis.Allow(ctx, "ratelimit:"+key, rl.limit)
		if err == nil {
			return Decision{
				Allowed:    res.Allowed > 0,
				Remaining:  res.Remaining,
				RetryAfter: max(res.RetryAfter, 0),
			}
		}
		rl.logger.Warn("redis rate limiter failed, using local bucket", "key", key, "error", err)
	}
	return rl.allowLocal(key)
}

func (rl *RateLimiter) allowLocal(key string) Decision {
	now := rl.now()

	rl.mu.Lock()
	b, ok := rl.local[key]
	if !ok {
		perSecond := float64(rl.limit.Rate) / rl.limit.Period.Seconds()
		b = &localBucket{limiter: rate.NewLimiter(rate.Limit(perSecond), rl.limit.Burst)}
		rl.local[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	if b.limiter.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: int(b.limiter.TokensAt(now))}
	}

	missing := 1 - b.limiter.TokensAt(now)
	perToken := float64(rl.limit.Period) / float64(rl.limit.Rate)
	return Decision{RetryAfter: time.Duration(missing * perToken)}
}

// Run drops idle local buckets once per window until ctx is cancelled.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.limit.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

// sweep removes buckets idle for a full window; they would be full again.
func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for key, b := range rl.local {
		if now.Sub(b.lastSeen) >= rl.limit.Period {
			delete(rl.local, key)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.local)
}

// =============================================================================
// Rate Limit Middleware
// =============================================================================

// RateLimitMiddleware wraps a rate limiter for use as HTTP middleware.
type RateLimitMiddleware struct {
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewRateLimitMiddleware creates a new rate limit middleware.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter: limiter,
		logger:  logger,
	}
}

// Limit returns middleware that rate limits requests per user.
//
// It must run after RequireUser so the principal is in the context.
// Requests without a user are keyed by client IP.
func (m *RateLimitMiddleware) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := rateLimitKey(r)
		d := m.limiter.Allow(r.Context(), key)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limiter.limit.Rate))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

		if !d.Allowed {
			m.logger.Warn("rate limit exceeded",
				"key", key,
				"path", r.URL.Path,
				"method", r.Method,
			)
			metrics.RateLimitedTotal.Inc()

			retryAfter := max(int(math.Ceil(d.RetryAfter.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			handler.ErrorResponse(w, r, m.logger, domain.RateLimit("middleware.rate_limit"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func rateLimitKey(r *http.Request) string {
	if user := auth.GetUser(r.Context()); user != nil {
		return "user:" + user.ID.String()
	}
	return "ip:" + getClientIP(r)
}

// =============================================================================
// Helpers
// =============================================================================

// getClientIP extracts the client IP from the request, considering proxy headers.
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs: client, proxy1, proxy2
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if clientIP := strings.TrimSpace(first); clientIP != "" {
			return clientIP
		}
	}

	// nginx
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr might not have a port
		return r.RemoteAddr
	}
	return ip
}

var _ func(http.Handler) http.Handler = (&RateLimitMiddleware{}).Limit
