// Package config provides configuration loading for newsrag.
//
// Configuration is read from a YAML file and overridden by environment
// variables with the NEWSRAG_ prefix.
package config

import (
	"errors"
	"fmt"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/telemetry"
)

// Config holds the complete newsrag configuration.
type Config struct {
	Source      SourceConfig      `koanf:"source"`
	Chunking    ChunkingConfig    `koanf:"chunking"`
	Analyzer    AnalyzerConfig    `koanf:"analyzer"`
	Embeddings  EmbeddingsConfig  `koanf:"embeddings"`
	VectorStore VectorStoreConfig `koanf:"vectorstore"`
	Logging     LoggingConfig     `koanf:"logging"`
	Telemetry   telemetry.Config  `koanf:"telemetry"`
}

// SourceConfig describes the news source being vectorized.
type SourceConfig struct {
	// Name tags every chunk with its origin, e.g. "qafqazinfo".
	Name string `koanf:"name"`

	// StartIndex/EndIndex optionally slice large exports. EndIndex zero
	// means "to the end".
	StartIndex int `koanf:"start_index"`
	EndIndex   int `koanf:"end_index"`
}

// ChunkingConfig holds text splitting settings.
type ChunkingConfig struct {
	Size    int `koanf:"size"`
	Overlap int `koanf:"overlap"`
}

// AnalyzerConfig holds LLM content analysis settings.
type AnalyzerConfig struct {
	// Mode selects the strategy: concurrent, sequential, or disabled.
	Mode string `koanf:"mode"`

	// MaxConcurrent bounds concurrent analyzer calls across a batch.
	MaxConcurrent int `koanf:"max_concurrent"`

	Model       string   `koanf:"model"`
	Temperature float64  `koanf:"temperature"`
	APIKey      Secret   `koanf:"api_key"`
	BaseURL     string   `koanf:"base_url"`
	Timeout     Duration `koanf:"timeout"`
	MaxRetries  int      `koanf:"max_retries"`
}

// EmbeddingsConfig holds the embedding provider settings.
type EmbeddingsConfig struct {
	BaseURL string `koanf:"base_url"`
	Model   string `koanf:"model"`
	APIKey  Secret `koanf:"api_key"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Provider is "chromem" (embedded, default) or "qdrant".
	Provider string `koanf:"provider"`

	// Collection is the target collection name.
	Collection string `koanf:"collection"`

	Chromem ChromemConfig `koanf:"chromem"`
	Qdrant  QdrantConfig  `koanf:"qdrant"`
}

// ChromemConfig holds embedded store settings.
type ChromemConfig struct {
	Path       string `koanf:"path"`
	Compress   bool   `koanf:"compress"`
	VectorSize int    `koanf:"vector_size"`
}

// QdrantConfig holds Qdrant gRPC client settings.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	VectorSize int    `koanf:"vector_size"`
	UseTLS     bool   `koanf:"use_tls"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `koanf:"level"`

	// Format is "json" or "console".
	Format string `koanf:"format"`
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.Chunking.Size == 0 {
		c.Chunking.Size = 600
	}
	if c.Chunking.Overlap == 0 {
		c.Chunking.Overlap = 100
	}

	if c.Analyzer.Mode == "" {
		c.Analyzer.Mode = "concurrent"
	}
	if c.Analyzer.MaxConcurrent == 0 {
		c.Analyzer.MaxConcurrent = 50
	}
	if c.Analyzer.Model == "" {
		c.Analyzer.Model = "gpt-4o-mini"
	}
	if c.Analyzer.Temperature == 0 {
		c.Analyzer.Temperature = 0.1
	}

	if c.Embeddings.Model == "" {
		c.Embeddings.Model = "text-embedding-3-small"
	}
	if c.Embeddings.BaseURL == "" {
		c.Embeddings.BaseURL = "https://api.openai.com/v1"
	}

	if c.VectorStore.Provider == "" {
		c.VectorStore.Provider = "chromem"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "news_chunks"
	}
	if c.VectorStore.Chromem.Path == "" {
		c.VectorStore.Chromem.Path = "~/.local/share/newsrag/vectorstore"
	}
	if c.VectorStore.Chromem.VectorSize == 0 {
		c.VectorStore.Chromem.VectorSize = 1536 // text-embedding-3-small
	}
	if c.VectorStore.Qdrant.Host == "" {
		c.VectorStore.Qdrant.Host = "localhost"
	}
	if c.VectorStore.Qdrant.Port == 0 {
		c.VectorStore.Qdrant.Port = 6334
	}
	if c.VectorStore.Qdrant.VectorSize == 0 {
		c.VectorStore.Qdrant.VectorSize = 1536
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}

	c.Telemetry.ApplyDefaults()
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 {
		return fmt.Errorf("chunking overlap cannot be negative, got %d", c.Chunking.Overlap)
	}
	if c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking overlap %d must be smaller than size %d", c.Chunking.Overlap, c.Chunking.Size)
	}

	switch c.Analyzer.Mode {
	case "concurrent", "sequential", "disabled":
	default:
		return fmt.Errorf("invalid analyzer mode: %q (supported: concurrent, sequential, disabled)", c.Analyzer.Mode)
	}
	if c.Analyzer.MaxConcurrent <= 0 {
		return fmt.Errorf("analyzer max_concurrent must be positive, got %d", c.Analyzer.MaxConcurrent)
	}
	if c.Analyzer.Mode != "disabled" && !c.Analyzer.APIKey.IsSet() {
		return errors.New("analyzer api_key required unless mode is disabled")
	}

	switch c.VectorStore.Provider {
	case "chromem", "qdrant":
	default:
		return fmt.Errorf("invalid vectorstore provider: %q (supported: chromem, qdrant)", c.VectorStore.Provider)
	}
	if c.VectorStore.Provider == "qdrant" {
		if c.VectorStore.Qdrant.Port < 1 || c.VectorStore.Qdrant.Port > 65535 {
			return fmt.Errorf("invalid qdrant port: %d", c.VectorStore.Qdrant.Port)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %q", c.Logging.Format)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return err
	}

	return nil
}
