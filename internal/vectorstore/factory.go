package vectorstore

import (
	"fmt"

	"go.uber.org/zap"
)

// Supported store providers.
const (
	ProviderChromem = "chromem"
	ProviderQdrant  = "qdrant"
)

// NewStore creates a Store from a provider name and provider-specific
// configuration:
//   - "chromem" (default): embedded ChromemStore, no external service
//   - "qdrant": QdrantStore, requires a running Qdrant server
func NewStore(provider string, chromemCfg *ChromemConfig, qdrantCfg *QdrantConfig, embedder Embedder, logger *zap.Logger) (Store, error) {
	switch provider {
	case ProviderChromem, "":
		cfg := ChromemConfig{}
		if chromemCfg != nil {
			cfg = *chromemCfg
		}
		return NewChromemStore(cfg, embedder, logger)

	case ProviderQdrant:
		if qdrantCfg == nil {
			return nil, fmt.Errorf("%w: qdrant config required for qdrant provider", ErrInvalidConfig)
		}
		return NewQdrantStore(*qdrantCfg, embedder)

	default:
		return nil, fmt.Errorf("%w: unsupported provider %q (supported: chromem, qdrant)", ErrInvalidConfig, provider)
	}
}
