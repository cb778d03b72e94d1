// Package middleware contains HTTP middleware for the usage service.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler.
// They are designed to be composed using a middleware stack approach.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/DukeRupert/hireready/internal/auth"
	"github.com/DukeRupert/hireready/internal/handler"
	"github.com/DukeRupert/hireready/internal/identity"
	"github.com/DukeRupert/hireready/internal/service"
)

// =============================================================================
// Configuration Constants
// =============================================================================

// SessionCookieName is the cookie the identity provider's frontend SDK
// stores the session token in. Browser requests carry it instead of an
// Authorization header.
const SessionCookieName = "__session"

// =============================================================================
// Auth Middleware Configuration
// =============================================================================

// AuthMiddleware provides authentication middleware functionality.
//
// This struct holds dependencies needed by auth middleware functions.
// Create one instance and use its methods as middleware.
type AuthMiddleware struct {
	verifier identity.TokenVerifier
	identity service.IdentityService
	logger   *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
//
// Parameters:
// - verifier: Checks session tokens issued by the identity provider
// - identitySvc: Maps the token subject to the local user row
// - logger: Structured logger for auth events
func NewAuthMiddleware(verifier identity.TokenVerifier, identitySvc service.IdentityService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
		identity: identitySvc,
		logger:   logger,
	}
}

// =============================================================================
// RequireUser Middleware
// =============================================================================

// RequireUser is middleware that requires a verified session token.
//
// This middleware:
// 1. Reads the token from the Authorization header or the session cookie
// 2. Verifies it against the provider's signing keys
// 3. Resolves the subject to a local user, creating it on first sight
// 4. Stores the principal in the request context
//
// Requests without a valid token get a 401 JSON error and never reach the
// handler, so no ledger is touched for them.
//
// The user can be retrieved in handlers using:
//
//	user := auth.GetUser(r.Context())
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		claims, err := m.verifier.Verify(r.Context(), token)
		if err != nil {
			m.logger.Debug("session token rejected", "error", err, "path", r.URL.Path)
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		user, err := m.identity.Resolve(r.Context(), claims.Subject, claims.Email)
		if err != nil {
			m.logger.Error("failed to resolve user for token",
				"error", err,
				"external_id", claims.Subject,
			)
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}

		ctx := auth.SetPrincipal(r.Context(), &auth.Principal{
			User:          user,
			ExternalID:    claims.Subject,
			TokenPlan:     claims.Plan,
			TokenIssuedAt: claims.IssuedAt,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// bearerToken returns the token from "Authorization: Bearer ..." or, failing
// that, the session cookie.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if c, err := r.Cookie(SessionCookieName); err == nil {
		return c.Value
	}
	return ""
}

// =============================================================================
// Middleware Stack Helpers
// =============================================================================

// Stack composes multiple middleware functions into a single middleware.
//
// Middleware is applied in the order provided, meaning the first middleware
// in the slice is the outermost (runs first on request, last on response).
//
// Example:
//
//	apiStack := Stack(authMw.RequireUser, limiter.Limit)
//	usageHandler.RegisterRoutes(mux, apiStack)
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// Ensure middleware functions have correct signature
var _ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
