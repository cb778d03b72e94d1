package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/DukeRupert/hireready/internal/ai"
	"github.com/DukeRupert/hireready/internal/metrics"
)

const (
	APIBaseURL   = "https://api.anthropic.com/v1/messages"
	APIVersion   = "2023-06-01"
	DefaultModel = "claude-3-5-sonnet-20241022"

	// MaxTranscriptBytes bounds the transcript sent for evaluation. A
	// one-hour interview transcribes to well under this.
	MaxTranscriptBytes = 400 * 1024

	maxOutputTokens = 4096

	// maxRetryAfter caps how long a 429 can make one attempt wait.
	maxRetryAfter = 30 * time.Second
)

type Config struct {
	APIKey         string
	Model          string
	BaseURL        string
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.Evaluator over the Messages API.
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	pc := &config.ProviderConfig
	if pc.MaxRetries == 0 {
		pc.MaxRetries = 3
	}
	if pc.RetryBaseDelay == 0 {
		pc.RetryBaseDelay = time.Second
	}
	if pc.RequestTimeout == 0 {
		pc.RequestTimeout = 150 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{Timeout: pc.RequestTimeout},
		logger: logger.With("provider", "anthropic", "model", config.Model),
	}, nil
}

// EvaluateSession scores one transcript. Timeouts are reported as
// ai.EAITimeout and are not retried here; the caller's budget is spent.
func (p *Provider) EvaluateSession(ctx context.Context, params ai.EvaluateParams) (*ai.Evaluation, error) {
	start := time.Now()

	transcript := strings.TrimSpace(params.Transcript)
	switch {
	case transcript == "":
		return nil, ai.WrapError("evaluate session", fmt.Errorf("%w: transcript is empty", ai.EAIInvalidInput))
	case len(transcript) > MaxTranscriptBytes:
		return nil, ai.WrapError("evaluate session", fmt.Errorf("%w: transcript is %d bytes, limit %d", ai.EAIInvalidInput, len(transcript), MaxTranscriptBytes))
	}

	body, err := json.Marshal(apiRequest{
		Model:     p.config.Model,
		MaxTokens: maxOutputTokens,
		System:    systemPrompt,
		Messages: []apiMessage{{
			Role:    "user",
			Content: []apiContent{{Type: "text", Text: buildEvaluationPrompt(transcript, params.Role)}},
		}},
	})
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.send(ctx, body)
	if err != nil {
		metrics.AIAPICalls.WithLabelValues(callStatus(err)).Inc()
		return nil, ai.WrapError("execute request", err)
	}
	metrics.AIAPICalls.WithLabelValues("success").Inc()
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))

	result, err := parseEvaluation(resp)
	if err != nil {
		return nil, ai.WrapError("parse response", err)
	}
	result.Usage = ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		Duration:     time.Since(start),
	}

	p.logger.Info("session evaluated",
		"session_id", params.SessionID,
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
		"duration_ms", result.Usage.Duration.Milliseconds(),
	)
	return result, nil
}

func callStatus(err error) string {
	switch {
	case errors.Is(err, ai.EAITimeout):
		return "timeout"
	case errors.Is(err, ai.EAIRateLimit):
		return "rate_limited"
	default:
		return "error"
	}
}

// send posts body, retrying rate limits and unavailability with exponential
// backoff. A Retry-After from the API replaces the backoff when longer.
func (p *Provider) send(ctx context.Context, body []byte) (*apiResponse, error) {
	pc := p.config.ProviderConfig
	var err error

	for attempt := 1; ; attempt++ {
		var resp *apiResponse
		resp, err = p.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		if !ai.IsRetryable(err) || errors.Is(err, ai.EAITimeout) || attempt >= pc.MaxRetries {
			return nil, err
		}

		wait := pc.RetryBaseDelay << (attempt - 1)
		var th *throttled
		if errors.As(err, &th) && th.wait > wait {
			wait = th.wait
		}
		p.logger.Info("retrying evaluation request", "attempt", attempt, "wait", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ai.EAITimeout, ctx.Err())
		}
	}
}

func (p *Provider) post(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp, raw)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &out, nil
}

func transportError(ctx context.Context, err error) error {
	var netErr net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", ai.EAITimeout, err)
	}
	return fmt.Errorf("%w: %v", ai.EAIUnavailable, err)
}

// throttled is a 429 that named how long to back off.
type throttled struct {
	wait time.Duration
}

func (t *throttled) Error() string { return fmt.Sprintf("%v (retry after %v)", ai.EAIRateLimit, t.wait) }
func (t *throttled) Unwrap() error { return ai.EAIRateLimit }

func statusError(resp *http.Response, body []byte) error {
	var apiErr apiErrorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
		if err != nil || secs <= 0 {
			return ai.EAIRateLimit
		}
		return &throttled{wait: min(time.Duration(secs)*time.Second, maxRetryAfter)}
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return fmt.Errorf("%w: %s", ai.EAIInvalidInput, apiErr.Error.Message)
	case http.StatusBadGateway, http.StatusServiceUnavailable, 529: // 529: API overloaded
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("evaluation API returned %d: %s", resp.StatusCode, apiErr.Error.Message)
	}
}

func parseEvaluation(resp *apiResponse) (*ai.Evaluation, error) {
	var text string
	for _, c := range resp.Content {
		if c.Type == "text" && c.Text != "" {
			text = c.Text
			break
		}
	}
	if text == "" {
		return nil, errors.New("no text content in response")
	}

	// The model sometimes wraps its JSON in prose or a code fence.
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var result ai.Evaluation
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("parse evaluation output: %w", err)
	}
	result.Normalize()
	return &result, nil
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system,omitempty"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type apiResponse struct {
	Content []apiContent `json:"content"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}
