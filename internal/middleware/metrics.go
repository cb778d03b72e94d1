package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/handler"
)

// MetricsAuthMiddleware guards the Prometheus scrape endpoint with basic auth.
type MetricsAuthMiddleware struct {
	username []byte
	password []byte
	enabled  bool
	logger   *slog.Logger
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// If both username and password are empty, authentication is disabled.
func NewMetricsAuthMiddleware(username, password string, logger *slog.Logger) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		username: []byte(username),
		password: []byte(password),
		enabled:  username != "" || password != "",
		logger:   logger,
	}
}

// Enabled reports whether scrapes must authenticate.
func (m *MetricsAuthMiddleware) Enabled() bool {
	return m.enabled
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		// Both comparisons always run.
		userMatch := subtle.ConstantTimeCompare([]byte(user), m.username)
		passMatch := subtle.ConstantTimeCompare([]byte(pass), m.password)
		if !ok || userMatch&passMatch != 1 {
			m.logger.Warn("metrics scrape rejected", "ip", getClientIP(r), "has_credentials", ok)
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics", charset="UTF-8"`)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		next.ServeHTTP(w, r)
	})
}
