// Package identity verifies identity-provider credentials and webhook
// deliveries and turns provider payloads into domain profiles.
//
// The provider is Clerk: session tokens are RS256 JWTs checked against the
// issuer's JWKS, and webhooks are signed with svix.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

const defaultLeeway = 30 * time.Second

// ErrUnauthorized is returned for any token that fails verification.
var ErrUnauthorized = errors.New("identity: unauthorized")

// Claims are the parts of a verified session token the service uses.
type Claims struct {
	Subject   string
	Email     string
	Plan      domain.PlanKey
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier verifies a session token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

// RejectAll is a TokenVerifier that accepts nothing. It stands in for the
// Clerk verifier when no issuer is configured in development.
type RejectAll struct{}

func (RejectAll) Verify(context.Context, string) (*Claims, error) {
	return nil, ErrUnauthorized
}

// ClerkVerifier validates Clerk-issued JWTs.
type ClerkVerifier struct {
	parser    *jwt.Parser
	keyfunc   func(ctx context.Context) jwt.Keyfunc
	planClaim string
}

// NewClerkVerifier fetches the issuer's JWKS and keeps it refreshed in the
// background until ctx is done.
func NewClerkVerifier(ctx context.Context, issuer, planClaim string) (*ClerkVerifier, error) {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	if issuer == "" {
		return nil, fmt.Errorf("clerk issuer URL is required")
	}

	jwksURL := issuer + "/.well-known/jwks.json"
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS from %s: %w", jwksURL, err)
	}

	return newClerkVerifier(issuer, planClaim, jwks.KeyfuncCtx), nil
}

// NewClerkVerifierWithKeyfunc builds a verifier over a fixed key lookup.
func NewClerkVerifierWithKeyfunc(issuer, planClaim string, kf jwt.Keyfunc) *ClerkVerifier {
	issuer = strings.TrimRight(strings.TrimSpace(issuer), "/")
	return newClerkVerifier(issuer, planClaim, func(context.Context) jwt.Keyfunc { return kf })
}

func newClerkVerifier(issuer, planClaim string, kf func(ctx context.Context) jwt.Keyfunc) *ClerkVerifier {
	if planClaim == "" {
		planClaim = "pla"
	}
	return &ClerkVerifier{
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithLeeway(defaultLeeway),
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Name}),
		),
		keyfunc:   kf,
		planClaim: planClaim,
	}
}

// Verify parses and validates a token and extracts its claims.
func (v *ClerkVerifier) Verify(ctx context.Context, tokenStr string) (*Claims, error) {
	token, err := v.parser.Parse(tokenStr, v.keyfunc(ctx))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrUnauthorized
	}

	sub := claimStr(claims, "sub")
	if sub == "" {
		return nil, ErrUnauthorized
	}

	out := &Claims{
		Subject: sub,
		Email:   claimStr(claims, "email"),
		Plan:    domain.HighestPlan(PlanFlags(claims[v.planClaim])),
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// PlanFlags reads a plan claim. Clerk encodes it as a comma-separated string
// ("u:starter,u:free_user"); arrays are accepted too.
func PlanFlags(raw any) []string {
	switch v := raw.(type) {
	case string:
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return v
	}
	return nil
}

func claimStr(claims jwt.MapClaims, key string) string {
	v, _ := claims[key].(string)
	return v
}
