package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default client configuration.
const (
	DefaultBaseURL          = "https://api.openai.com"
	DefaultModel            = "gpt-4o-mini"
	DefaultTemperature      = 0.1
	DefaultTimeout          = 60 * time.Second
	DefaultMaxRetries       = 3
	DefaultBaseBackoff      = 1 * time.Second
	DefaultMaxContentLength = 4000
)

// Rate limiter defaults: 50 requests per minute with small bursts.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// ClientConfig holds configuration for the OpenAI-backed analyzer.
type ClientConfig struct {
	// APIKey authenticates against the chat completions API. Required.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for a proxy or test server.
	BaseURL string

	// Model is the chat model used for analysis.
	Model string

	// Temperature for generation. Low values keep extraction consistent.
	Temperature float64

	// Timeout bounds each HTTP attempt.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after the first on
	// transient failures (429, 5xx, network errors). Zero disables retries.
	MaxRetries int

	// MaxContentLength truncates document text before sending, bounding
	// token cost per call.
	MaxContentLength int

	// RequestsPerSecond throttles outgoing calls. Zero uses the default
	// 50/min shared-account budget.
	RequestsPerSecond float64

	// Logger is optional; nil falls back to a no-op logger.
	Logger *zap.Logger
}

func (c *ClientConfig) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.Temperature == 0 {
		c.Temperature = DefaultTemperature
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxContentLength == 0 {
		c.MaxContentLength = DefaultMaxContentLength
	}
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaultRateLimit
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// analyzePrompt instructs the model to return one JSON object per article.
const analyzePrompt = `You are a news content analyst. Analyze the article and respond with a single JSON object containing:
- "category": one of politics, economy, society, sports, culture, technology, incidents, other
- "sentiment": one of positive, neutral, negative
- "sentiment_score": number from -1.0 to 1.0
- "importance": integer from 1 to 10
- "geographic_scope": one of local, national, regional, international, unknown
- "temporal_relevance": one of breaking, current, ongoing, historical
- "topics": array of short topic strings
- "entities": array of named entities (people, organizations, locations)
- "keywords": array of salient keywords
- "summary": one or two sentence summary

Respond ONLY with the JSON object, no additional text.`

// OpenAIAnalyzer analyzes articles via the OpenAI chat completions API.
//
// A single instance is safe for concurrent use; the rate limiter and HTTP
// client are shared across goroutines. Concurrency across documents is
// bounded by the batch service's admission gate, not here.
type OpenAIAnalyzer struct {
	config     ClientConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewOpenAIAnalyzer creates an analyzer from the given configuration.
func NewOpenAIAnalyzer(cfg ClientConfig) (*OpenAIAnalyzer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: API key required", ErrInvalidConfig)
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("%w: max retries cannot be negative", ErrInvalidConfig)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		return nil, fmt.Errorf("%w: temperature must be between 0 and 2, got %g", ErrInvalidConfig, cfg.Temperature)
	}
	cfg.applyDefaults()

	return &OpenAIAnalyzer{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), defaultBurst),
		logger:  cfg.Logger.Named("analyzer"),
	}, nil
}

// chatRequest is the request body for the chat completions endpoint.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Analyze derives metadata for one document with retry on transient errors.
func (a *OpenAIAnalyzer) Analyze(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyContent
	}

	content := truncateRunes(text, a.config.MaxContentLength)

	req := chatRequest{
		Model:       a.config.Model,
		Temperature: a.config.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: analyzePrompt},
			{Role: "user", Content: "Article:\n\n" + content},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := DefaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return Result{}, fmt.Errorf("%w: %v", ErrAnalysisFailed, ctx.Err())
			}
		}

		result, err := a.doRequest(ctx, req)
		if err == nil {
			a.logger.Debug("document analyzed",
				zap.String("category", result.Category),
				zap.Int("importance", result.Importance),
				zap.Int("entities", result.EntityCount),
			)
			return result, nil
		}

		lastErr = err
		if !isRetryable(err) {
			return Result{}, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
		}
		a.logger.Warn("analysis attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Error(err),
		)
	}

	return Result{}, fmt.Errorf("%w: max retries exceeded: %v", ErrAnalysisFailed, lastErr)
}

// doRequest performs one HTTP attempt against the chat completions API.
func (a *OpenAIAnalyzer) doRequest(ctx context.Context, req chatRequest) (Result, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return Result{}, &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return Result{}, &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return Result{}, &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp chatError
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message)
		}
		return Result{}, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return Result{}, fmt.Errorf("parsing response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return Result{}, fmt.Errorf("empty response from API")
	}

	return parseResultJSON(chatResp.Choices[0].Message.Content)
}

// parseResultJSON parses the model's JSON reply into a Result. A reply that
// does not conform is an error, never a silently defaulted record.
func parseResultJSON(content string) (Result, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var result Result
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		return Result{}, fmt.Errorf("unparseable analysis response: %w", err)
	}

	if result.Category == "" {
		return Result{}, errors.New("analysis response missing category")
	}
	if result.Sentiment == "" {
		result.Sentiment = "neutral"
	}
	if result.SentimentScore < -1 {
		result.SentimentScore = -1
	}
	if result.SentimentScore > 1 {
		result.SentimentScore = 1
	}
	if result.Importance < 1 {
		result.Importance = 1
	}
	if result.Importance > 10 {
		result.Importance = 10
	}
	if result.GeographicScope == "" {
		result.GeographicScope = "unknown"
	}
	if result.TemporalRelevance == "" {
		result.TemporalRelevance = "current"
	}

	result.EntityCount = len(result.Entities)
	result.Exists = true
	return result, nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// retryableError marks an error as transient.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

// isRetryable reports whether the error is transient and worth retrying.
// Authentication failures and malformed requests or responses are not.
func isRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}

var _ Analyzer = (*OpenAIAnalyzer)(nil)
