package storage

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestWebhookKey(t *testing.T) {
	at := time.Date(2026, 3, 9, 23, 30, 0, 0, time.FixedZone("PST", -8*3600))

	tests := []struct {
		name     string
		provider string
		eventID  string
		want     string
	}{
		{name: "stripe", provider: "stripe", eventID: "evt_1Nx", want: "webhooks/stripe/2026/03/10/evt_1Nx.json"},
		{name: "traversal", provider: "clerk", eventID: "../../etc/passwd", want: "webhooks/clerk/2026/03/10/______etc_passwd.json"},
		{name: "empty id", provider: "clerk", eventID: " ", want: "webhooks/clerk/2026/03/10/unknown.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WebhookKey(tt.provider, tt.eventID, at))
		})
	}
}

func TestLocalStorage_PutGet(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	key := "webhooks/clerk/2026/03/10/msg_1.json"
	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"a":1}`), PutOptions{ContentType: contentTypeJSON}))

	ok, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	rc, info, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(body))
	assert.Equal(t, int64(7), info.Size)

	err = s.Put(ctx, key, strings.NewReader(`{"a":2}`), PutOptions{})
	assert.ErrorIs(t, err, ErrKeyExists)

	require.NoError(t, s.Put(ctx, key, strings.NewReader(`{"a":2}`), PutOptions{Overwrite: true}))
}

func TestLocalStorage_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	for _, key := range []string{"", "../outside.json", "a/../../b.json", "."} {
		err := s.Put(ctx, key, strings.NewReader("x"), PutOptions{})
		assert.ErrorIs(t, err, ErrInvalidKey, key)
	}

	_, _, err = s.Get(ctx, "missing.json")
	assert.True(t, IsNotFound(err))

	ok, err := s.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchive_Store(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(LocalConfig{BasePath: t.TempDir()}, discardLogger())
	require.NoError(t, err)

	a := NewArchive(s, discardLogger())
	a.now = func() time.Time { return time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC) }

	key, err := a.Store(ctx, "stripe", "evt_1", []byte(`{"id":"evt_1"}`))
	require.NoError(t, err)
	assert.Equal(t, "webhooks/stripe/2026/03/10/evt_1.json", key)

	// A redelivery keeps the first payload.
	again, err := a.Store(ctx, "stripe", "evt_1", []byte(`{"id":"evt_1","retry":true}`))
	require.NoError(t, err)
	assert.Equal(t, key, again)

	rc, _, err := s.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()
	body, _ := io.ReadAll(rc)
	assert.Equal(t, `{"id":"evt_1"}`, string(body))
}

func TestWrapS3Error(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{code: "NoSuchKey", want: ErrNotFound},
		{code: "AccessDenied", want: ErrAccessDenied},
		{code: "PreconditionFailed", want: ErrKeyExists},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := wrapS3Error(&smithy.GenericAPIError{Code: tt.code})
			assert.ErrorIs(t, err, tt.want)
		})
	}

	err := wrapS3Error(&smithy.GenericAPIError{Code: "SlowDown"})
	assert.ErrorContains(t, err, "R2 operation failed")
}
