package identity

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	svix "github.com/svix/svix-webhooks/go"
)

// testSecret is base64 for "hireready-webhook-test-secret!!".
const testSecret = "whsec_aGlyZXJlYWR5LXdlYmhvb2stdGVzdC1zZWNyZXQhIQ=="

func signedHeaders(t *testing.T, secret, msgID string, payload []byte, ts time.Time) http.Header {
	t.Helper()
	wh, err := svix.NewWebhook(secret)
	require.NoError(t, err)
	sig, err := wh.Sign(msgID, ts, payload)
	require.NoError(t, err)

	h := http.Header{}
	h.Set("svix-id", msgID)
	h.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	h.Set("svix-signature", sig)
	return h
}

func TestWebhookVerifier(t *testing.T) {
	v, err := NewWebhookVerifier(testSecret)
	require.NoError(t, err)

	payload := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	headers := signedHeaders(t, testSecret, "msg_1", payload, time.Now())

	require.NoError(t, v.Verify(payload, headers))
	assert.Equal(t, "msg_1", MessageID(headers))

	assert.Error(t, v.Verify([]byte(`{"type":"user.deleted"}`), headers), "tampered body")

	stale := signedHeaders(t, testSecret, "msg_2", payload, time.Now().Add(-time.Hour))
	assert.Error(t, v.Verify(payload, stale), "outside tolerance")

	assert.Error(t, v.Verify(payload, http.Header{}), "missing headers")
}

func TestWebhookVerifier_Disabled(t *testing.T) {
	v, err := NewWebhookVerifier("")
	require.NoError(t, err)
	assert.ErrorIs(t, v.Verify([]byte(`{}`), http.Header{}), ErrWebhookDisabled)
}
