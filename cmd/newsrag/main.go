// Package main implements the newsrag CLI for vectorizing news archives
// and querying the resulting vector store.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/config"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/embeddings"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/logging"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorstore"
)

var (
	// configPath is the optional YAML config file. Environment variables
	// with the NEWSRAG_ prefix override it.
	configPath string
	// version information, set via -ldflags at build time
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "newsrag",
	Short: "Vectorize news archives into a searchable vector store",
	Long: `newsrag processes news article exports into cleaned, chunked, analyzed
and embedded documents stored in a vector database (chromem or Qdrant).`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	rootCmd.AddCommand(vectorizeCmd)
	rootCmd.AddCommand(searchCmd)
}

// setup loads config and builds the shared logger. Every subcommand
// starts here.
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, nil, err
	}

	return cfg, logger, nil
}

// buildStore wires the embedding service and the configured vector store
// backend.
func buildStore(cfg *config.Config, logger *zap.Logger) (*embeddings.Service, vectorstore.Store, error) {
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		APIKey:  cfg.Embeddings.APIKey.Value(),
		Logger:  logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedding service: %w", err)
	}

	chromemCfg := &vectorstore.ChromemConfig{
		Path:              cfg.VectorStore.Chromem.Path,
		Compress:          cfg.VectorStore.Chromem.Compress,
		DefaultCollection: cfg.VectorStore.Collection,
		VectorSize:        cfg.VectorStore.Chromem.VectorSize,
	}
	qdrantCfg := &vectorstore.QdrantConfig{
		Host:           cfg.VectorStore.Qdrant.Host,
		Port:           cfg.VectorStore.Qdrant.Port,
		CollectionName: cfg.VectorStore.Collection,
		VectorSize:     uint64(cfg.VectorStore.Qdrant.VectorSize),
		UseTLS:         cfg.VectorStore.Qdrant.UseTLS,
	}

	store, err := vectorstore.NewStore(cfg.VectorStore.Provider, chromemCfg, qdrantCfg, embedder, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vector store: %w", err)
	}

	return embedder, store, nil
}
