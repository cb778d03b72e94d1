package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Evaluator scores a finished mock interview.
type Evaluator interface {
	// EvaluateSession produces the detailed analysis of one transcript.
	EvaluateSession(ctx context.Context, params EvaluateParams) (*Evaluation, error)
}

// EvaluateParams contains the inputs of a detailed analysis
type EvaluateParams struct {
	SessionID  uuid.UUID // Session being evaluated
	UserID     uuid.UUID // Owner, for logging
	Transcript string    // Full interview transcript
	Role       string    // Optional target role the candidate practiced for
}

// Evaluation is the detailed analysis of an interview
type Evaluation struct {
	OverallScore int               `json:"overall_score"` // 0-100
	Summary      string            `json:"summary"`
	Strengths    []string          `json:"strengths"`
	Improvements []string          `json:"improvements"`
	Competencies []CompetencyScore `json:"competencies"`
	Usage        UsageInfo         `json:"-"`
}

// CompetencyScore rates one interview skill
type CompetencyScore struct {
	Name     string `json:"name"`
	Score    int    `json:"score"` // 1-5
	Feedback string `json:"feedback"`
}

// Normalize clamps scores into range and drops empty competencies.
func (e *Evaluation) Normalize() {
	e.OverallScore = clamp(e.OverallScore, 0, 100)
	kept := e.Competencies[:0]
	for _, c := range e.Competencies {
		if c.Name == "" {
			continue
		}
		c.Score = clamp(c.Score, 1, 5)
		kept = append(kept, c)
	}
	e.Competencies = kept
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// UsageInfo tracks API usage for monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidInput indicates the transcript is empty or too large
	EAIInvalidInput = errors.New("invalid evaluation input")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// IsTimeout reports whether err is a provider or context timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, EAITimeout) || errors.Is(err, context.DeadlineExceeded)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
