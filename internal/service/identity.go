// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
)

// =============================================================================
// Interface Definition
// =============================================================================

// IdentityService mirrors identity-provider users into the local users table.
type IdentityService interface {
	// Reconcile upserts the profile, falling back through less demanding
	// tiers when a tier fails validation or its write fails. Reconciling the
	// same profile twice yields the same row. A newly created user also gets
	// a free subscription.
	Reconcile(ctx context.Context, profile domain.ExternalProfile) (*domain.User, error)

	// Resolve returns the local user for an external ID, creating a minimal
	// row on first sight.
	Resolve(ctx context.Context, externalID, email string) (*domain.User, error)

	// Deleted handles a provider-side deletion. Ledger rows are kept.
	Deleted(ctx context.Context, externalID string)
}

// =============================================================================
// Implementation
// =============================================================================

type identityService struct {
	store         repository.Store
	subscriptions SubscriptionService
	logger        *slog.Logger
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(store repository.Store, subscriptions SubscriptionService, logger *slog.Logger) IdentityService {
	return &identityService{
		store:         store,
		subscriptions: subscriptions,
		logger:        logger,
	}
}

func (s *identityService) Reconcile(ctx context.Context, profile domain.ExternalProfile) (*domain.User, error) {
	const op = "identity.reconcile"

	if profile == nil {
		return nil, domain.Invalid(op, "Profile is required")
	}

	var validationErr, writeErr error
	for p := profile; p != nil; p = p.Degrade() {
		if err := p.Validate(); err != nil {
			if validationErr == nil {
				validationErr = err
			}
			s.logger.Debug("Profile tier rejected", "tier", p.Tier(), "error", err)
			continue
		}

		row, err := s.apply(ctx, p)
		if err != nil {
			writeErr = err
			s.logger.Warn("Profile tier write failed",
				"tier", p.Tier(),
				"external_id", p.ExternalUserID(),
				"error", err,
			)
			continue
		}

		metrics.ReconciliationsTotal.WithLabelValues(string(p.Tier())).Inc()
		if p.Tier() != profile.Tier() {
			s.logger.Info("Profile reconciled at reduced tier",
				"external_id", p.ExternalUserID(),
				"requested", profile.Tier(),
				"applied", p.Tier(),
			)
		}

		if err := s.subscriptions.EnsureDefault(ctx, row.ID); err != nil {
			s.logger.Error("Failed to ensure default subscription", "user_id", row.ID, "error", err)
		}

		user := userFromRow(row)
		return &user, nil
	}

	metrics.ReconciliationsTotal.WithLabelValues("failed").Inc()
	if writeErr == nil && validationErr != nil {
		return nil, validationErr
	}
	return nil, domain.Internal(writeErr, op, "failed to reconcile user")
}

func (s *identityService) apply(ctx context.Context, p domain.ExternalProfile) (repository.User, error) {
	switch v := p.(type) {
	case domain.FullProfile:
		return s.store.UpsertUserFull(ctx, repository.UpsertUserFullParams{
			ExternalID:  v.ExternalID,
			Email:       v.Email,
			FirstName:   v.FirstName,
			LastName:    v.LastName,
			DisplayName: v.DisplayName(),
			ImageUrl:    v.ImageURL,
		})
	case domain.PartialProfile:
		return s.store.UpsertUserPartial(ctx, repository.UpsertUserPartialParams{
			ExternalID: v.ExternalID,
			Email:      v.Email,
		})
	case domain.MinimalProfile:
		return s.store.CreateUserMinimal(ctx, repository.CreateUserMinimalParams{
			ExternalID: v.ExternalID,
			Email:      v.Email,
		})
	}
	return repository.User{}, domain.Errorf(domain.EINTERNAL, "identity.apply", "unknown profile tier %q", p.Tier())
}

func (s *identityService) Resolve(ctx context.Context, externalID, email string) (*domain.User, error) {
	const op = "identity.resolve"

	row, err := s.store.GetUserByExternalID(ctx, externalID)
	if err == nil {
		user := userFromRow(row)
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, domain.Internal(err, op, "failed to look up user")
	}
	return s.Reconcile(ctx, domain.MinimalProfile{ExternalID: externalID, Email: email})
}

func (s *identityService) Deleted(ctx context.Context, externalID string) {
	s.logger.Info("Identity provider deleted user; ledger rows retained", "external_id", externalID)
}
