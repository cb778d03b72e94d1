package identity

import (
	"errors"
	"fmt"
	"net/http"

	svix "github.com/svix/svix-webhooks/go"
)

// ErrWebhookDisabled is returned when no signing secret is configured.
var ErrWebhookDisabled = errors.New("identity: webhook secret not configured")

// WebhookVerifier checks svix signatures on provider webhooks.
type WebhookVerifier struct {
	wh *svix.Webhook
}

// NewWebhookVerifier builds a verifier for a "whsec_..." secret. An empty
// secret yields a verifier that rejects every delivery.
func NewWebhookVerifier(secret string) (*WebhookVerifier, error) {
	if secret == "" {
		return &WebhookVerifier{}, nil
	}
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook secret: %w", err)
	}
	return &WebhookVerifier{wh: wh}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers
// against payload.
func (v *WebhookVerifier) Verify(payload []byte, headers http.Header) error {
	if v.wh == nil {
		return ErrWebhookDisabled
	}
	if err := v.wh.Verify(payload, headers); err != nil {
		return fmt.Errorf("webhook signature: %w", err)
	}
	return nil
}

// MessageID returns the delivery ID used to deduplicate redeliveries.
func MessageID(headers http.Header) string {
	return headers.Get("svix-id")
}
