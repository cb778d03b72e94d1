// Package storage archives raw webhook payloads to object storage.
//
// Implementations:
// - LocalStorage: File system storage for development
// - R2Storage: Cloudflare R2 (S3-compatible) storage for production
//
// The archive is write-once: an event redelivered by its provider maps to the
// same key and is not written twice.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Storage defines the object operations the archive needs.
//
// All methods are context-aware for timeout and cancellation support.
type Storage interface {
	// Put stores data at the specified key. Returns ErrKeyExists if the key
	// already exists and opts.Overwrite is false.
	Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error

	// Get retrieves the data at the specified key. The caller must close the
	// reader. Returns ErrNotFound if the key doesn't exist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)

	// Exists checks if an object exists at the specified key.
	Exists(ctx context.Context, key string) (bool, error)
}

// =============================================================================
// Data Types
// =============================================================================

// PutOptions configures how an object is stored.
type PutOptions struct {
	// ContentType specifies the MIME type of the object.
	ContentType string

	// Overwrite allows replacing an existing object at the same key.
	Overwrite bool
}

// ObjectInfo contains metadata about a stored object.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// =============================================================================
// Configuration Types
// =============================================================================

// LocalConfig holds configuration for local filesystem storage.
type LocalConfig struct {
	// BasePath is the root directory where objects are stored.
	BasePath string
}

// R2Config holds configuration for Cloudflare R2 storage.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string

	// Region is required by the AWS SDK; R2 accepts "auto".
	Region string
}

const (
	// ProviderLocal identifies the local filesystem storage provider.
	ProviderLocal = "local"

	// ProviderR2 identifies the Cloudflare R2 storage provider.
	ProviderR2 = "r2"
)

const contentTypeJSON = "application/json"

// =============================================================================
// Archive
// =============================================================================

// WebhookKey returns the archive key of an event:
// webhooks/{provider}/{yyyy}/{mm}/{dd}/{eventID}.json
func WebhookKey(provider, eventID string, receivedAt time.Time) string {
	return fmt.Sprintf("webhooks/%s/%s/%s.json",
		sanitizeSegment(provider),
		receivedAt.UTC().Format("2006/01/02"),
		sanitizeSegment(eventID),
	)
}

// sanitizeSegment keeps a key segment to one path element.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, s)
	if s == "" {
		return "unknown"
	}
	return s
}

// Archive stores verified webhook payloads.
type Archive struct {
	store  Storage
	logger *slog.Logger
	now    func() time.Time
}

// NewArchive creates an Archive over store.
func NewArchive(store Storage, logger *slog.Logger) *Archive {
	return &Archive{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Store writes payload under the event's key and returns the key. A payload
// already archived under that key is left as is.
func (a *Archive) Store(ctx context.Context, provider, eventID string, payload []byte) (string, error) {
	key := WebhookKey(provider, eventID, a.now())

	err := a.store.Put(ctx, key, bytes.NewReader(payload), PutOptions{ContentType: contentTypeJSON})
	if errors.Is(err, ErrKeyExists) {
		a.logger.Debug("webhook payload already archived", "key", key)
		return key, nil
	}
	if err != nil {
		return "", err
	}
	return key, nil
}
