// Package auth provides authentication context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// principalContextKey is the key used to store the verified caller.
	principalContextKey contextKey = "principal"
)

// Principal is a verified caller: the local user row plus what the identity
// token asserted.
type Principal struct {
	User *domain.User

	// ExternalID is the identity provider's user ID (the token subject).
	ExternalID string

	// TokenPlan is the plan the token's claims advertise. The subscription
	// record stays authoritative for quota decisions.
	TokenPlan domain.PlanKey

	// TokenIssuedAt orders plan claims against webhook-driven transitions.
	TokenIssuedAt time.Time
}

// GetPrincipal retrieves the verified caller from the context.
//
// Returns nil if the request was not authenticated.
func GetPrincipal(ctx context.Context) *Principal {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok {
		return nil
	}
	return p
}

// SetPrincipal stores the verified caller in the context.
func SetPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// GetUser retrieves the authenticated user from the context.
//
// Usage:
//
//	user := auth.GetUser(r.Context())
//	if user == nil {
//	    // Handle unauthenticated request
//	}
func GetUser(ctx context.Context) *domain.User {
	p := GetPrincipal(ctx)
	if p == nil {
		return nil
	}
	return p.User
}

// GetUserFromRequest is GetUser for a request.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}
