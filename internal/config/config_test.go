package config_test

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/config"
)

func TestApplyDefaults(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 600, cfg.Chunking.Size)
	assert.Equal(t, 100, cfg.Chunking.Overlap)
	assert.Equal(t, "concurrent", cfg.Analyzer.Mode)
	assert.Equal(t, 50, cfg.Analyzer.MaxConcurrent)
	assert.Equal(t, "gpt-4o-mini", cfg.Analyzer.Model)
	assert.InDelta(t, 0.1, cfg.Analyzer.Temperature, 0.0001)
	assert.Equal(t, "text-embedding-3-small", cfg.Embeddings.Model)
	assert.Equal(t, "chromem", cfg.VectorStore.Provider)
	assert.Equal(t, "news_chunks", cfg.VectorStore.Collection)
	assert.Equal(t, 1536, cfg.VectorStore.Chromem.VectorSize)
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		cfg := &config.Config{}
		cfg.ApplyDefaults()
		cfg.Analyzer.APIKey = "sk-test"
		return cfg
	}

	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("overlap not below size", func(t *testing.T) {
		cfg := valid()
		cfg.Chunking.Overlap = cfg.Chunking.Size
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown analyzer mode", func(t *testing.T) {
		cfg := valid()
		cfg.Analyzer.Mode = "parallel"
		assert.Error(t, cfg.Validate())
	})

	t.Run("api key required unless disabled", func(t *testing.T) {
		cfg := valid()
		cfg.Analyzer.APIKey = ""
		assert.Error(t, cfg.Validate())

		cfg.Analyzer.Mode = "disabled"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := valid()
		cfg.VectorStore.Provider = "weaviate"
		assert.Error(t, cfg.Validate())
	})

	t.Run("bad log level", func(t *testing.T) {
		cfg := valid()
		cfg.Logging.Level = "verbose"
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad_FromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
source:
  name: qafqazinfo
  start_index: 10
  end_index: 200
chunking:
  size: 800
  overlap: 150
analyzer:
  mode: sequential
  api_key: sk-from-file
vectorstore:
  provider: qdrant
  qdrant:
    host: qdrant.internal
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qafqazinfo", cfg.Source.Name)
	assert.Equal(t, 10, cfg.Source.StartIndex)
	assert.Equal(t, 800, cfg.Chunking.Size)
	assert.Equal(t, 150, cfg.Chunking.Overlap)
	assert.Equal(t, "sequential", cfg.Analyzer.Mode)
	assert.Equal(t, "sk-from-file", cfg.Analyzer.APIKey.Value())
	assert.Equal(t, "qdrant", cfg.VectorStore.Provider)
	assert.Equal(t, "qdrant.internal", cfg.VectorStore.Qdrant.Host)
	// Defaults still apply for unset fields.
	assert.Equal(t, 6334, cfg.VectorStore.Qdrant.Port)
	assert.Equal(t, "gpt-4o-mini", cfg.Analyzer.Model)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("chunking:\n  size: 800\n"), 0o600))

	t.Setenv("NEWSRAG_CHUNKING_SIZE", "400")
	t.Setenv("NEWSRAG_ANALYZER_API_KEY", "sk-from-env")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 400, cfg.Chunking.Size)
	assert.Equal(t, "sk-from-env", cfg.Analyzer.APIKey.Value())
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("NEWSRAG_ANALYZER_MODE", "disabled")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "disabled", cfg.Analyzer.Mode)
	assert.Equal(t, 600, cfg.Chunking.Size)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidConfigFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analyzer:\n  mode: turbo\n"), 0o600))

	_, err := config.Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "analyzer mode")
}

func TestSecret_Redaction(t *testing.T) {
	s := config.Secret("sk-super-secret")

	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "[REDACTED]", fmt.Sprintf("%v", s))
	assert.Equal(t, "Secret([REDACTED])", fmt.Sprintf("%#v", s))
	assert.Equal(t, "sk-super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	assert.False(t, config.Secret("").IsSet())
	assert.Equal(t, "", config.Secret("").String())
}

func TestDuration_Parsing(t *testing.T) {
	var d config.Duration
	require.NoError(t, d.UnmarshalText([]byte("45s")))
	assert.Equal(t, "45s", d.Duration().String())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not-a-duration")))
}
