package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/hireready/internal/ai"
)

// Provider is a mock evaluator for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	EvaluateResponse *ai.Evaluation
	EvaluateError    error
	// Delay simulates a slow provider; it honors context cancellation.
	Delay time.Duration

	// Call tracking for testing
	EvaluateCalls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// EvaluateSession returns a canned evaluation
func (p *Provider) EvaluateSession(ctx context.Context, params ai.EvaluateParams) (*ai.Evaluation, error) {
	p.mu.Lock()
	p.EvaluateCalls++
	resp, respErr, delay := p.EvaluateResponse, p.EvaluateError, p.Delay
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ai.WrapError("evaluate session", ai.EAITimeout)
		}
	}

	if respErr != nil {
		return nil, respErr
	}
	if resp != nil {
		return resp, nil
	}

	p.logger.Debug("Mock evaluation", "session_id", params.SessionID, "transcript_bytes", len(params.Transcript))

	return &ai.Evaluation{
		OverallScore: 72,
		Summary:      "Clear, well-paced answers with good examples. Behavioral answers would land better with measurable outcomes.",
		Strengths: []string{
			"Explains technical decisions in plain language",
			"Stays calm when a question is ambiguous",
		},
		Improvements: []string{
			"Quantify the results of the projects you describe",
			"Close behavioral answers with what you learned",
		},
		Competencies: []ai.CompetencyScore{
			{Name: "Communication", Score: 4, Feedback: "Answers were structured and easy to follow."},
			{Name: "Answer structure", Score: 3, Feedback: "Situation and action were clear; the result was often missing."},
			{Name: "Technical depth", Score: 4, Feedback: "Accurate explanations of the trade-offs involved."},
			{Name: "Problem solving", Score: 3, Feedback: "Reasoned aloud, but jumped to a solution before clarifying requirements."},
			{Name: "Role fit", Score: 4, Feedback: "Examples were relevant to the role."},
		},
		Usage: ai.UsageInfo{
			Model:        "mock-ai-v1",
			InputTokens:  1800,
			OutputTokens: 600,
			Duration:     250 * time.Millisecond,
		},
	}, nil
}

// Calls returns how many evaluations were requested.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.EvaluateCalls
}

// Reset clears call counters and custom responses for testing
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.EvaluateCalls = 0
	p.EvaluateResponse = nil
	p.EvaluateError = nil
	p.Delay = 0
}
