package extraction

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	defaultBaseURL     = "https://api.openai.com"
	defaultModel       = "gpt-4o-mini"
	defaultTimeout     = 60 * time.Second
	defaultMaxAttempts = 3
	defaultRetryDelay  = 3 * time.Second
)

// Rate limiter defaults: 50 requests per minute.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

var (
	// errMissingFields indicates a payload that parsed but lacks required
	// fields. Internal to the retry loop.
	errMissingFields = errors.New("payload missing required fields")
)

// Config holds configuration for the extraction client.
type Config struct {
	// BaseURL is the base URL of the chat completions API.
	BaseURL string

	// APIKey authenticates against the API.
	APIKey string

	// Model is the model used for extraction.
	Model string

	// Timeout bounds a single API request. Zero means 60s.
	Timeout time.Duration

	// MaxAttempts is the default attempt budget per extraction.
	MaxAttempts int

	// RetryDelay is the fixed delay between attempts.
	RetryDelay time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.Timeout == 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = defaultRetryDelay
	}
}

// Client calls an OpenAI-compatible chat completions API and resolves every
// extraction into a terminal Result. Transport errors, unparseable payloads
// and schema violations are all retried up to the attempt budget with a
// fixed inter-attempt delay.
type Client struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	// sleep is the inter-attempt delay hook, injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new extraction client.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("extraction API key required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		logger:     logger,
		sleep:      sleepContext,
	}, nil
}

// MaxAttempts returns the configured default attempt budget.
func (c *Client) MaxAttempts() int {
	return c.config.MaxAttempts
}

// sleepContext waits for d or until the context is cancelled.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// systemPrompt builds the strict extraction instruction. The required keys
// are listed explicitly for redundancy with the response format.
func systemPrompt() string {
	keys := make([]string, len(requiredFields))
	for i, k := range requiredFields {
		keys[i] = fmt.Sprintf("%q", k)
	}
	return "You are an expert AI research assistant. Your task is to analyze the provided text " +
		"(a research paper abstract) and an optional image. Extract the required information and " +
		"return it STRICTLY in the specified JSON format. The JSON object MUST contain the " +
		"following keys: " + strings.Join(keys, ", ") + ". " +
		"Do not include any explanatory text outside of the JSON object."
}

// Extract runs the retry loop for one item. maxAttempts <= 0 falls back to
// the configured default. The returned Result is always terminal: a complete
// Record or an ErrorMarker carrying the attempt count and last cause.
func (c *Client) Extract(ctx context.Context, text, imagePath string, maxAttempts int) Result {
	if maxAttempts <= 0 {
		maxAttempts = c.config.MaxAttempts
	}

	req := c.buildRequest(text, imagePath)

	var lastCause string
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec, err := c.attempt(ctx, req)
		if err == nil {
			c.logger.Debug("extraction succeeded", zap.Int("attempt", attempt))
			return success(rec)
		}

		lastCause = err.Error()
		c.logger.Warn("extraction attempt failed",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", maxAttempts),
			zap.String("cause", lastCause),
		)

		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, c.config.RetryDelay); err != nil {
			return failure(attempt, fmt.Sprintf("cancelled while waiting to retry: %v", err))
		}
	}

	return failure(maxAttempts, fmt.Sprintf("extraction failed after %d attempts: %s", maxAttempts, lastCause))
}

// chatRequest is the chat completions request body.
type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	ResponseFormat responseFormat `json:"response_format"`
	Temperature    float64        `json:"temperature"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatMessage carries either a plain string (system) or content parts (user).
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// chatResponse is the chat completions response body.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatError is an API error response body.
type chatError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// buildRequest assembles the request once; attempts reuse it. A missing or
// unreadable image degrades to a text-only request rather than failing the
// extraction.
func (c *Client) buildRequest(text, imagePath string) chatRequest {
	parts := []contentPart{{Type: "text", Text: text}}
	if imagePath != "" {
		if data, err := os.ReadFile(imagePath); err == nil {
			parts = append(parts, contentPart{
				Type: "image_url",
				ImageURL: &imageURL{
					URL: "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data),
				},
			})
		} else {
			c.logger.Warn("skipping unreadable image", zap.String("path", imagePath), zap.Error(err))
		}
	}

	return chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt()},
			{Role: "user", Content: parts},
		},
		ResponseFormat: responseFormat{Type: "json_object"},
		Temperature:    0.1,
	}
}

// attempt performs one API call and validates the payload. Any returned
// error means the attempt failed, regardless of HTTP status.
func (c *Client) attempt(ctx context.Context, req chatRequest) (*Record, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr chatError
		if err := json.Unmarshal(respBody, &apiErr); err == nil && apiErr.Error.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("empty response from API")
	}

	rec, err := parseRecord([]byte(stripFences(chatResp.Choices[0].Message.Content)))
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	return rec, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
