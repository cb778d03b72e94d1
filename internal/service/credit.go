package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// =============================================================================
// Interface Definition
// =============================================================================

// CreditService reads the top-up balance and applies purchases.
type CreditService interface {
	Balance(ctx context.Context, userID uuid.UUID) (*domain.CreditBalance, error)

	// GrantTopUp adds purchased minutes once per provider event. A
	// redelivered event returns granted false and leaves the balance alone.
	GrantTopUp(ctx context.Context, params TopUpParams) (granted bool, err error)

	// RecordEvent stores a webhook event ID. It returns false when the event
	// was already seen.
	RecordEvent(ctx context.Context, event WebhookEvent) (bool, error)
}

// WebhookEvent identifies one provider delivery.
type WebhookEvent struct {
	Provider string
	ID       string
	Type     string
	Payload  json.RawMessage
}

// TopUpParams describe a completed purchase.
type TopUpParams struct {
	Event   WebhookEvent
	UserID  uuid.UUID
	Minutes int64
}

// =============================================================================
// Implementation
// =============================================================================

type creditService struct {
	store  repository.Store
	logger *slog.Logger
}

// NewCreditService creates a new CreditService.
func NewCreditService(store repository.Store, logger *slog.Logger) CreditService {
	return &creditService{
		store:  store,
		logger: logger,
	}
}

func (s *creditService) Balance(ctx context.Context, userID uuid.UUID) (*domain.CreditBalance, error) {
	const op = "credit.balance"

	cb, err := creditBalance(ctx, s.store, userID)
	if err != nil {
		return nil, domain.Internal(err, op, "failed to load credit balance")
	}
	return &cb, nil
}

func eventParams(e WebhookEvent) repository.InsertWebhookEventParams {
	return repository.InsertWebhookEventParams{
		Provider:  e.Provider,
		EventID:   e.ID,
		EventType: e.Type,
		Payload:   pqtype.NullRawMessage{RawMessage: e.Payload, Valid: len(e.Payload) > 0},
	}
}

func (s *creditService) GrantTopUp(ctx context.Context, params TopUpParams) (bool, error) {
	const op = "credit.grant_top_up"

	if params.UserID == uuid.Nil {
		return false, domain.NewValidationError(op, "user_id", "User ID is required")
	}
	if params.Minutes <= 0 {
		return false, domain.NewValidationError(op, "minutes", "Minutes must be positive")
	}
	if params.Event.ID == "" {
		return false, domain.NewValidationError(op, "event_id", "Event ID is required")
	}

	granted := false
	var balance int64
	err := s.store.ExecTx(ctx, func(q repository.Querier) error {
		_, err := q.InsertWebhookEvent(ctx, eventParams(params.Event))
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		cb, err := q.AddCredit(ctx, repository.AddCreditParams{UserID: params.UserID, Minutes: params.Minutes})
		if err != nil {
			return err
		}
		granted = true
		balance = cb.Balance
		return nil
	})
	if err != nil {
		return false, domain.Internal(err, op, "failed to grant top-up")
	}

	if !granted {
		s.logger.Info("Ignored duplicate top-up event",
			"provider", params.Event.Provider,
			"event_id", params.Event.ID,
		)
		return false, nil
	}

	metrics.CreditGrantedMinutesTotal.WithLabelValues("purchase").Add(float64(params.Minutes))
	s.logger.Info("Top-up granted",
		"user_id", params.UserID,
		"minutes", params.Minutes,
		"balance", balance,
		"event_id", params.Event.ID,
	)
	return true, nil
}

func (s *creditService) RecordEvent(ctx context.Context, event WebhookEvent) (bool, error) {
	const op = "credit.record_event"

	_, err := s.store.InsertWebhookEvent(ctx, eventParams(event))
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.Internal(err, op, "failed to record webhook event")
	}
	return true, nil
}
