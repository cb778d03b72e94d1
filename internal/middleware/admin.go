package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/handler"
)

// AdminMiddleware restricts operator routes to a configured set of emails.
type AdminMiddleware struct {
	emails map[string]bool
	logger *slog.Logger
}

// NewAdminMiddleware creates a new AdminMiddleware. Emails are compared
// case-insensitively. With no emails every request is refused.
func NewAdminMiddleware(emails []string, logger *slog.Logger) *AdminMiddleware {
	set := make(map[string]bool, len(emails))
	for _, e := range emails {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = true
		}
	}
	return &AdminMiddleware{emails: set, logger: logger}
}

// RequireAdmin must run after RequireUser.
func (m *AdminMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := auth.GetUser(r.Context())
		if user == nil {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		if !m.emails[strings.ToLower(user.Email)] {
			m.logger.Warn("admin route refused", "user_id", user.ID, "path", r.URL.Path)
			handler.ErrorResponse(w, r, m.logger, domain.Forbidden("middleware.require_admin", "Admin access required"))
			return
		}

		next.ServeHTTP(w, r)
	})
}

var _ func(http.Handler) http.Handler = (&AdminMiddleware{}).RequireAdmin
