package embeddings

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
)

// Config holds configuration for the embedding service client.
type Config struct {
	// BaseURL is the base URL of the embedding server.
	BaseURL string

	// Model is the embedding model name, forwarded with every request.
	Model string

	// Dimension is the embedding dimension produced by the model.
	Dimension int

	// Timeout bounds a single embedding request. Zero means 60s.
	Timeout time.Duration
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "http://localhost:8080"
	}
	if c.Model == "" {
		c.Model = "Alibaba-NLP/gme-Qwen2-VL-7B-Instruct"
	}
	if c.Dimension == 0 {
		c.Dimension = 1536
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("%w: base URL required", ErrInvalidConfig)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("%w: dimension must be positive", ErrInvalidConfig)
	}
	return nil
}

// Service calls an HTTP embedding server exposing text, image and fused
// entry points. It implements Provider.
type Service struct {
	config Config
	client *http.Client
	logger *zap.Logger
}

// NewService creates a new embedding service client.
func NewService(config Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &Service{
		config: config,
		client: &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

// embedRequest is the request body for the embed endpoints.
type embedRequest struct {
	Model       string `json:"model"`
	Text        string `json:"text,omitempty"`
	Image       string `json:"image,omitempty"` // base64-encoded bytes
	IsQuery     bool   `json:"is_query"`
	Instruction string `json:"instruction,omitempty"`
}

// embedResponse is the response body for the embed endpoints.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedText embeds plain text.
func (s *Service) EmbedText(ctx context.Context, text string, isQuery bool, instruction string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	return s.embed(ctx, "/embed/text", embedRequest{
		Model:       s.config.Model,
		Text:        text,
		IsQuery:     isQuery,
		Instruction: instruction,
	})
}

// EmbedImage embeds the image at the given path.
func (s *Service) EmbedImage(ctx context.Context, imagePath string, isQuery bool, instruction string) ([]float32, error) {
	encoded, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}
	return s.embed(ctx, "/embed/image", embedRequest{
		Model:       s.config.Model,
		Image:       encoded,
		IsQuery:     isQuery,
		Instruction: instruction,
	})
}

// EmbedFused embeds text and image jointly.
func (s *Service) EmbedFused(ctx context.Context, text, imagePath string, isQuery bool, instruction string) ([]float32, error) {
	if text == "" {
		return nil, fmt.Errorf("%w: text cannot be empty", ErrEmptyInput)
	}
	encoded, err := encodeImage(imagePath)
	if err != nil {
		return nil, err
	}
	return s.embed(ctx, "/embed/fused", embedRequest{
		Model:       s.config.Model,
		Text:        text,
		Image:       encoded,
		IsQuery:     isQuery,
		Instruction: instruction,
	})
}

// Dimension returns the configured embedding dimension.
func (s *Service) Dimension() int {
	return s.config.Dimension
}

// embed issues a single embedding request and validates the response shape.
func (s *Service) embed(ctx context.Context, path string, req embedRequest) ([]float32, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: status %d: %s", ErrEmbeddingFailed, resp.StatusCode, string(respBody))
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Embedding) != s.config.Dimension {
		return nil, fmt.Errorf("%w: got dimension %d, expected %d",
			ErrEmbeddingFailed, len(out.Embedding), s.config.Dimension)
	}

	s.logger.Debug("embedding generated",
		zap.String("endpoint", path),
		zap.Bool("is_query", req.IsQuery),
		zap.Duration("duration", time.Since(start)),
	)

	return out.Embedding, nil
}

// encodeImage reads an image file and base64-encodes it.
func encodeImage(imagePath string) (string, error) {
	if imagePath == "" {
		return "", fmt.Errorf("%w: image path cannot be empty", ErrEmptyInput)
	}
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return "", fmt.Errorf("reading image %s: %w", imagePath, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Ensure interface is implemented.
var _ Provider = (*Service)(nil)
