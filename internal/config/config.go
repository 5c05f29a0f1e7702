// Package config provides configuration loading for recall.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration.
type Config struct {
	Store      StoreConfig      `koanf:"store"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	Extraction ExtractionConfig `koanf:"extraction"`
	Backfill   BackfillConfig   `koanf:"backfill"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// StoreConfig configures the vector store.
type StoreConfig struct {
	// Path is the SQLite catalog file.
	Path string `koanf:"path"`

	// Collection is the similarity index name.
	Collection string `koanf:"collection"`

	// VectorSize is the embedding dimension; must match the embedding model.
	VectorSize int `koanf:"vector_size"`
}

// EmbeddingsConfig configures the embedding server client.
type EmbeddingsConfig struct {
	BaseURL string        `koanf:"base_url"`
	Model   string        `koanf:"model"`
	Timeout time.Duration `koanf:"timeout"`

	// SearchInstruction is passed with every query-side embedding.
	SearchInstruction string `koanf:"search_instruction"`
}

// ExtractionConfig configures the extraction API client.
type ExtractionConfig struct {
	BaseURL     string        `koanf:"base_url"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxAttempts int           `koanf:"max_attempts"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
}

// BackfillConfig configures the backfill worker pool.
type BackfillConfig struct {
	// Workers is the default worker count when the caller does not override
	// it.
	Workers int `koanf:"workers"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "console" or "json".
	Format string `koanf:"format"`
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.config/recall/recall.db"
	}
	if cfg.Store.Collection == "" {
		cfg.Store.Collection = "recall_items"
	}
	if cfg.Store.VectorSize == 0 {
		cfg.Store.VectorSize = 1536
	}

	if cfg.Embeddings.BaseURL == "" {
		cfg.Embeddings.BaseURL = "http://localhost:8080"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "Alibaba-NLP/gme-Qwen2-VL-7B-Instruct"
	}

	if cfg.Extraction.BaseURL == "" {
		cfg.Extraction.BaseURL = "https://api.openai.com"
	}
	if cfg.Extraction.Model == "" {
		cfg.Extraction.Model = "gpt-4o-mini"
	}
	if cfg.Extraction.MaxAttempts == 0 {
		cfg.Extraction.MaxAttempts = 3
	}
	if cfg.Extraction.RetryDelay == 0 {
		cfg.Extraction.RetryDelay = 3 * time.Second
	}

	if cfg.Backfill.Workers == 0 {
		cfg.Backfill.Workers = 4
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.VectorSize <= 0 {
		return fmt.Errorf("store.vector_size must be positive")
	}
	if c.Extraction.MaxAttempts <= 0 {
		return fmt.Errorf("extraction.max_attempts must be positive")
	}
	if c.Extraction.RetryDelay < 0 {
		return fmt.Errorf("extraction.retry_delay must not be negative")
	}
	if c.Backfill.Workers <= 0 {
		return fmt.Errorf("backfill.workers must be positive")
	}
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	return nil
}
