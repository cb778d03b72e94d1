package billing

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func checkoutEvent(t *testing.T, session map[string]any) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	require.NoError(t, err)
	return stripe.Event{
		ID:   "evt_test",
		Type: EventCheckoutCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestParseTopUp(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name    string
		session map[string]any
		want    *TopUp
		wantErr error
		anyErr  bool
	}{
		{
			name: "paid top-up",
			session: map[string]any{
				"id":             "cs_1",
				"payment_status": "paid",
				"metadata":       map[string]string{"kind": "topup", "user_id": userID.String(), "minutes": "30"},
			},
			want: &TopUp{CheckoutSessionID: "cs_1", UserID: userID, Minutes: 30},
		},
		{
			name: "subscription checkout",
			session: map[string]any{
				"id":             "cs_2",
				"payment_status": "paid",
				"metadata":       map[string]string{},
			},
			wantErr: ErrNotTopUp,
		},
		{
			name: "unpaid",
			session: map[string]any{
				"id":             "cs_3",
				"payment_status": "unpaid",
				"metadata":       map[string]string{"kind": "topup", "user_id": userID.String(), "minutes": "30"},
			},
			anyErr: true,
		},
		{
			name: "bad user id",
			session: map[string]any{
				"id":             "cs_4",
				"payment_status": "paid",
				"metadata":       map[string]string{"kind": "topup", "user_id": "nope", "minutes": "30"},
			},
			anyErr: true,
		},
		{
			name: "zero minutes",
			session: map[string]any{
				"id":             "cs_5",
				"payment_status": "paid",
				"metadata":       map[string]string{"kind": "topup", "user_id": userID.String(), "minutes": "0"},
			},
			anyErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTopUp(checkoutEvent(t, tt.session))
			switch {
			case tt.wantErr != nil:
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			case tt.anyErr:
				assert.Error(t, err)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	const secret = "whsec_test"
	svc := NewStripeService(Config{WebhookSecret: secret, TopUpMinutes: 30})
	assert.Equal(t, int64(30), svc.TopUpMinutes())

	payload := []byte(fmt.Sprintf(`{"id":"evt_1","object":"event","type":"%s","data":{"object":{"id":"cs_1"}}}`, EventCheckoutCompleted))
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	event, err := svc.VerifyWebhookSignature(signed.Payload, signed.Header)
	require.NoError(t, err)
	assert.Equal(t, "evt_1", event.ID)

	_, err = svc.VerifyWebhookSignature(payload, "t=1,v1=deadbeef")
	assert.Error(t, err)
}
