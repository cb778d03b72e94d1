// Package billing provides the Stripe integration for top-up minute purchases.
package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	checkoutsession "github.com/stripe/stripe-go/v79/checkout/session"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Metadata keys stamped on top-up checkout sessions.
const (
	MetadataUserID  = "user_id"
	MetadataMinutes = "minutes"
	MetadataKind    = "kind"

	kindTopUp = "topup"
)

// EventCheckoutCompleted is the only Stripe event that grants credit.
const EventCheckoutCompleted = "checkout.session.completed"

// ErrNotTopUp is returned by ParseTopUp for checkout sessions that are not
// top-up purchases.
var ErrNotTopUp = errors.New("checkout session is not a top-up")

// Service defines the interface for billing operations.
type Service interface {
	// CreateTopUpCheckout creates a one-time payment Checkout session for a
	// top-up pack. Returns the URL to redirect the user to.
	CreateTopUpCheckout(params TopUpCheckoutParams) (string, error)

	// VerifyWebhookSignature verifies the Stripe webhook signature and returns the event.
	VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error)

	// TopUpMinutes is the number of minutes one pack grants.
	TopUpMinutes() int64
}

// TopUpCheckoutParams are the inputs of CreateTopUpCheckout.
type TopUpCheckoutParams struct {
	UserID     uuid.UUID
	Email      string
	SuccessURL string
	CancelURL  string
}

// Config holds the Stripe settings for top-ups.
type Config struct {
	SecretKey     string
	WebhookSecret string
	TopUpPriceID  string
	TopUpMinutes  int64
}

// stripeService is the concrete implementation of Service.
type stripeService struct {
	webhookSecret string
	priceID       string
	minutes       int64
}

// NewStripeService creates a new Stripe billing service.
//
// The secret key authenticates Stripe API calls and the webhook secret
// verifies incoming webhook signatures.
func NewStripeService(cfg Config) Service {
	stripe.Key = cfg.SecretKey

	return &stripeService{
		webhookSecret: cfg.WebhookSecret,
		priceID:       cfg.TopUpPriceID,
		minutes:       cfg.TopUpMinutes,
	}
}

func (s *stripeService) TopUpMinutes() int64 {
	return s.minutes
}

func (s *stripeService) CreateTopUpCheckout(params TopUpCheckoutParams) (string, error) {
	metadata := map[string]string{
		MetadataUserID:  params.UserID.String(),
		MetadataMinutes: strconv.FormatInt(s.minutes, 10),
		MetadataKind:    kindTopUp,
	}

	p := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		ClientReferenceID: stripe.String(params.UserID.String()),
		SuccessURL:        stripe.String(params.SuccessURL),
		CancelURL:         stripe.String(params.CancelURL),
	}
	if params.Email != "" {
		p.CustomerEmail = stripe.String(params.Email)
	}
	for k, v := range metadata {
		p.AddMetadata(k, v)
	}

	sess, err := checkoutsession.New(p)
	if err != nil {
		return "", fmt.Errorf("stripe create checkout session: %w", err)
	}
	return sess.URL, nil
}

func (s *stripeService) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("stripe webhook signature verification failed: %w", err)
	}
	return event, nil
}

// TopUp is a paid top-up purchase extracted from a checkout event.
type TopUp struct {
	CheckoutSessionID string
	UserID            uuid.UUID
	Minutes           int64
}

// ParseTopUp extracts the purchase from a checkout.session.completed event.
// Sessions without top-up metadata return ErrNotTopUp; unpaid sessions are
// an error.
func ParseTopUp(event stripe.Event) (*TopUp, error) {
	if event.Data == nil {
		return nil, fmt.Errorf("event %s has no data", event.ID)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("parse checkout session: %w", err)
	}
	if sess.Metadata[MetadataKind] != kindTopUp {
		return nil, ErrNotTopUp
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, fmt.Errorf("checkout session %s payment status %q", sess.ID, sess.PaymentStatus)
	}

	userID, err := uuid.Parse(sess.Metadata[MetadataUserID])
	if err != nil {
		return nil, fmt.Errorf("checkout session %s user_id: %w", sess.ID, err)
	}
	minutes, err := strconv.ParseInt(sess.Metadata[MetadataMinutes], 10, 64)
	if err != nil || minutes <= 0 {
		return nil, fmt.Errorf("checkout session %s has invalid minutes %q", sess.ID, sess.Metadata[MetadataMinutes])
	}

	return &TopUp{
		CheckoutSessionID: sess.ID,
		UserID:            userID,
		Minutes:           minutes,
	}, nil
}
