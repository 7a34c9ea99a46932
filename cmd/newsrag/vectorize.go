package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/analyzer"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/loader"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/logging"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/telemetry"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorize"
)

var sourceName string

var vectorizeCmd = &cobra.Command{
	Use:   "vectorize <file.json>",
	Short: "Process a news export into the vector store",
	Long: `Vectorize reads a JSON export of news articles, cleans and chunks each
document, optionally analyzes content with an LLM, embeds the chunks and
upserts them into the configured vector store.

Re-running on the same file is safe: chunk IDs are deterministic, so
existing chunks are overwritten rather than duplicated.

Examples:
  # Vectorize a full export
  newsrag vectorize news.json --source qafqazinfo

  # Vectorize a slice without analysis
  NEWSRAG_ANALYZER_MODE=disabled NEWSRAG_SOURCE_END_INDEX=100 newsrag vectorize news.json`,
	Args: cobra.ExactArgs(1),
	RunE: runVectorize,
}

func init() {
	vectorizeCmd.Flags().StringVar(&sourceName, "source", "", "source name tag for chunk IDs (overrides config)")
}

func runVectorize(cmd *cobra.Command, args []string) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Global meter and tracer providers must be installed before any
	// instrumented component is constructed.
	tel, err := telemetry.New(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", zap.Error(err))
		}
	}()

	name := cfg.Source.Name
	if sourceName != "" {
		name = sourceName
	}
	if name == "" {
		return fmt.Errorf("source name required (--source flag or source.name in config)")
	}

	docs, err := loader.NewSlicingLoader(cfg.Source.StartIndex, cfg.Source.EndIndex, logger).Load(args[0])
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no documents to process in %s", args[0])
	}

	an, err := analyzer.New(analyzer.Mode(cfg.Analyzer.Mode), analyzer.ClientConfig{
		APIKey:      cfg.Analyzer.APIKey.Value(),
		BaseURL:     cfg.Analyzer.BaseURL,
		Model:       cfg.Analyzer.Model,
		Temperature: cfg.Analyzer.Temperature,
		Timeout:     cfg.Analyzer.Timeout.Duration(),
		MaxRetries:  cfg.Analyzer.MaxRetries,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("failed to create analyzer: %w", err)
	}

	embedder, store, err := buildStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	svc, err := vectorize.NewService(vectorize.Config{
		Collection:    cfg.VectorStore.Collection,
		ChunkSize:     cfg.Chunking.Size,
		ChunkOverlap:  cfg.Chunking.Overlap,
		MaxConcurrent: cfg.Analyzer.MaxConcurrent,
		AnalyzerMode:  analyzer.Mode(cfg.Analyzer.Mode),
	}, an, embedder, store, logger)
	if err != nil {
		return fmt.Errorf("failed to create vectorize service: %w", err)
	}

	logger.Info("starting vectorization",
		zap.String("source", name),
		zap.Int("documents", len(docs)),
		zap.String("analyzer_mode", cfg.Analyzer.Mode),
		zap.String("provider", cfg.VectorStore.Provider))

	result, err := svc.Vectorize(ctx, docs, name)
	if err != nil {
		return err
	}

	fmt.Printf("Documents: %d total, %d processed, %d failed\n",
		result.TotalDocuments, result.Processed, result.Failed)
	fmt.Printf("Chunks stored: %d\n", result.ChunksStored)
	fmt.Printf("Duration: %s\n", result.Duration.Round(10*time.Millisecond))

	for _, docErr := range result.Errors {
		fmt.Fprintf(os.Stderr, "  document %d failed at %s: %s\n", docErr.DocID, docErr.Stage, docErr.Msg)
	}

	if result.Failed > 0 && result.Processed == 0 {
		return fmt.Errorf("all %d documents failed", result.Failed)
	}
	return nil
}
