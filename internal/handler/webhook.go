// Package handler contains the HTTP handlers of the usage service.
//
// This file implements the provider webhook handlers.
//
// Routes:
//   - POST /webhooks/clerk  -> HandleClerkWebhook
//   - POST /webhooks/stripe -> HandleStripeWebhook
//
// These routes are PUBLIC (no auth middleware) because the providers call
// them directly. Authentication is via signature verification. Deliveries
// are at-least-once, so every path below is safe to replay.
package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/DukeRupert/hireready/internal/billing"
	"github.com/DukeRupert/hireready/internal/domain"
	"github.com/DukeRupert/hireready/internal/identity"
	"github.com/DukeRupert/hireready/internal/metrics"
	"github.com/DukeRupert/hireready/internal/service"
	"github.com/DukeRupert/hireready/internal/storage"
	"github.com/stripe/stripe-go/v79"
)

const (
	providerClerk  = "clerk"
	providerStripe = "stripe"

	// Clerk user payloads carry every email and external account.
	maxClerkBodyBytes  = 256 << 10
	maxStripeBodyBytes = 64 << 10
)

// Webhook outcomes recorded in metrics.
const (
	outcomeProcessed = "processed"
	outcomeDuplicate = "duplicate"
	outcomeIgnored   = "ignored"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// WebhookDeps are the collaborators of WebhookHandler.
type WebhookDeps struct {
	// ClerkVerifier checks svix signatures on identity webhooks.
	ClerkVerifier *identity.WebhookVerifier

	// Billing may be nil when Stripe is not configured.
	Billing billing.Service

	Identity      service.IdentityService
	Subscriptions service.SubscriptionService
	Credits       service.CreditService

	// Archive may be nil, in which case payloads are not archived.
	Archive *storage.Archive
}

// WebhookHandler handles incoming webhook events from Clerk and Stripe.
type WebhookHandler struct {
	deps   WebhookDeps
	logger *slog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(deps WebhookDeps, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{
		deps:   deps,
		logger: logger,
	}
}

// RegisterRoutes registers webhook routes on the provided mux.
// These routes are public; providers authenticate by signature.
func (h *WebhookHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /webhooks/clerk", h.HandleClerkWebhook)
	mux.HandleFunc("POST /webhooks/stripe", h.HandleStripeWebhook)
}

// =============================================================================
// Clerk
// =============================================================================

// HandleClerkWebhook processes identity and subscription events.
//
// Malformed events are acknowledged and dropped since a redelivery would
// fail the same way. Service failures answer 500 so the provider retries.
func (h *WebhookHandler) HandleClerkWebhook(w http.ResponseWriter, r *http.Request) {
	if h.deps.ClerkVerifier == nil {
		h.logger.Warn("clerk webhook received but verifier is not configured")
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	body, ok := h.readBody(w, r, providerClerk, maxClerkBodyBytes)
	if !ok {
		return
	}

	if err := h.deps.ClerkVerifier.Verify(body, r.Header); err != nil {
		metrics.WebhooksTotal.WithLabelValues(providerClerk, outcomeRejected).Inc()
		if errors.Is(err, identity.ErrWebhookDisabled) {
			h.logger.Warn("clerk webhook received but no signing secret is configured")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		h.logger.Warn("webhook signature verification failed", "provider", providerClerk, "error", err)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	eventID := identity.MessageID(r.Header)
	event, err := identity.ParseEvent(body)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(providerClerk, outcomeIgnored).Inc()
		h.logger.Warn("malformed clerk event", "event_id", eventID, "error", err)
		w.WriteHeader(http.StatusOK)
		return
	}

	h.logger.Info("clerk webhook received", "type", event.Type, "event_id", eventID)
	h.archive(r.Context(), providerClerk, eventID, body)

	outcome, err := h.dispatchClerk(r.Context(), event)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(providerClerk, outcomeFailed).Inc()
		if domain.IsCode(err, domain.EINVALID) {
			h.logger.Warn("clerk event rejected", "type", event.Type, "event_id", eventID, "error", err)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("clerk event failed", "type", event.Type, "event_id", eventID, "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if outcome == outcomeProcessed {
		fresh, err := h.deps.Credits.RecordEvent(r.Context(), service.WebhookEvent{
			Provider: providerClerk,
			ID:       eventID,
			Type:     event.Type,
			Payload:  body,
		})
		switch {
		case err != nil:
			h.logger.Warn("failed to record webhook event", "event_id", eventID, "error", err)
		case !fresh:
			outcome = outcomeDuplicate
		}
	}

	metrics.WebhooksTotal.WithLabelValues(providerClerk, outcome).Inc()
	w.WriteHeader(http.StatusOK)
}

// dispatchClerk routes an event. Every branch is idempotent: reconciling a
// profile twice yields the same row and stale transitions are ignored.
func (h *WebhookHandler) dispatchClerk(ctx context.Context, event *identity.Event) (string, error) {
	const op = "webhook.clerk"

	switch event.Type {
	case identity.EventUserCreated, identity.EventUserUpdated:
		data, err := event.UserData()
		if err != nil {
			return "", domain.Wrap(err, domain.EINVALID, op, "malformed user payload")
		}
		if _, err := h.deps.Identity.Reconcile(ctx, data.Profile()); err != nil {
			return "", err
		}

	case identity.EventUserDeleted:
		data, err := event.UserData()
		if err != nil {
			return "", domain.Wrap(err, domain.EINVALID, op, "malformed user payload")
		}
		h.deps.Identity.Deleted(ctx, data.ID)

	case identity.EventSessionCreated:
		data, err := event.SessionData()
		if err != nil {
			return "", domain.Wrap(err, domain.EINVALID, op, "malformed session payload")
		}
		if _, err := h.deps.Identity.Resolve(ctx, data.UserID, ""); err != nil {
			return "", err
		}

	case identity.EventSubscriptionCreated, identity.EventSubscriptionUpdated,
		identity.EventSubscriptionCancelled, identity.EventSubscriptionDeleted:
		change, err := event.Change()
		if err != nil {
			return "", domain.Wrap(err, domain.EINVALID, op, "malformed subscription payload")
		}
		user, err := h.deps.Identity.Resolve(ctx, change.ExternalUserID, change.Email)
		if err != nil {
			return "", err
		}
		state, err := h.deps.Subscriptions.Transition(ctx, domain.TransitionParams{
			UserID:      user.ID,
			PlanKey:     change.PlanKey,
			Cancel:      change.Cancel,
			PeriodStart: change.PeriodStart,
			PeriodEnd:   change.PeriodEnd,
			EventAt:     change.EventAt,
		})
		if err != nil {
			return "", err
		}
		if !state.Applied {
			return outcomeIgnored, nil
		}

	default:
		h.logger.Debug("unhandled webhook event type", "provider", providerClerk, "type", event.Type)
		return outcomeIgnored, nil
	}
	return outcomeProcessed, nil
}

// =============================================================================
// Stripe
// =============================================================================

// HandleStripeWebhook processes top-up purchases.
func (h *WebhookHandler) HandleStripeWebhook(w http.ResponseWriter, r *http.Request) {
	if h.deps.Billing == nil {
		h.logger.Warn("stripe webhook received but billing is not configured")
		w.WriteHeader(http.StatusOK)
		return
	}

	body, ok := h.readBody(w, r, providerStripe, maxStripeBodyBytes)
	if !ok {
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	event, err := h.deps.Billing.VerifyWebhookSignature(body, signature)
	if err != nil {
		metrics.WebhooksTotal.WithLabelValues(providerStripe, outcomeRejected).Inc()
		h.logger.Warn("webhook signature verification failed", "provider", providerStripe, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	h.logger.Info("stripe webhook received", "type", event.Type, "event_id", event.ID)
	h.archive(r.Context(), providerStripe, event.ID, body)

	outcome := outcomeIgnored
	switch event.Type {
	case billing.EventCheckoutCompleted:
		outcome, err = h.handleCheckoutCompleted(r.Context(), event, body)
		if err != nil {
			metrics.WebhooksTotal.WithLabelValues(providerStripe, outcomeFailed).Inc()
			h.logger.Error("top-up grant failed", "event_id", event.ID, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	default:
		h.logger.Debug("unhandled webhook event type", "provider", providerStripe, "type", event.Type)
	}

	metrics.WebhooksTotal.WithLabelValues(providerStripe, outcome).Inc()
	w.WriteHeader(http.StatusOK)
}

// handleCheckoutCompleted grants a paid top-up. The grant and the event
// record share a transaction, so a redelivery adds nothing.
func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, event stripe.Event, body []byte) (string, error) {
	topUp, err := billing.ParseTopUp(event)
	if errors.Is(err, billing.ErrNotTopUp) {
		return outcomeIgnored, nil
	}
	if err != nil {
		h.logger.Warn("unusable top-up checkout", "event_id", event.ID, "error", err)
		return outcomeIgnored, nil
	}

	granted, err := h.deps.Credits.GrantTopUp(ctx, service.TopUpParams{
		Event: service.WebhookEvent{
			Provider: providerStripe,
			ID:       event.ID,
			Type:     string(event.Type),
			Payload:  body,
		},
		UserID:  topUp.UserID,
		Minutes: topUp.Minutes,
	})
	if err != nil {
		return "", err
	}
	if !granted {
		return outcomeDuplicate, nil
	}

	h.logger.Info("top-up granted",
		"user_id", topUp.UserID,
		"amount", topUp.Minutes,
		"checkout_session_id", topUp.CheckoutSessionID,
		"event_id", event.ID,
	)
	return outcomeProcessed, nil
}

// archive stores a verified payload. Failures are logged only.
func (h *WebhookHandler) archive(ctx context.Context, provider, eventID string, body []byte) {
	if h.deps.Archive == nil || eventID == "" {
		return
	}
	if _, err := h.deps.Archive.Store(ctx, provider, eventID, body); err != nil {
		h.logger.Warn("failed to archive webhook payload",
			"provider", provider,
			"event_id", eventID,
			"error", err,
		)
	}
}

// readBody reads at most limit bytes. An oversized body is answered with 413
// rather than truncated, since a truncated payload can never verify.
func (h *WebhookHandler) readBody(w http.ResponseWriter, r *http.Request, provider string, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err == nil {
		return body, true
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		metrics.WebhooksTotal.WithLabelValues(provider, outcomeRejected).Inc()
		h.logger.Warn("webhook body too large", "provider", provider, "limit", limit)
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return nil, false
	}

	h.logger.Error("failed to read webhook body", "provider", provider, "error", err)
	w.WriteHeader(http.StatusBadRequest)
	return nil, false
}
