// Package pipeline turns raw news documents into vector-store-ready chunks.
//
// Each document passes through cleaning, a single content analysis, and
// chunking. Every resulting chunk carries the full document metadata so
// that search results are self-describing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/analyzer"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/chunker"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/loader"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/textproc"
)

var (
	// ErrEmptyDocument indicates the document has no text left after
	// cleaning.
	ErrEmptyDocument = errors.New("document empty after cleaning")

	// ErrInvalidConfig indicates missing pipeline dependencies.
	ErrInvalidConfig = errors.New("invalid pipeline configuration")
)

// Chunk is one vector-store-ready piece of a document.
type Chunk struct {
	// ID is the stable chunk identifier: {source}_{docID}_chunk_{index}.
	// Re-processing the same document yields the same IDs, making store
	// upserts idempotent.
	ID string

	// Text is the cleaned chunk text.
	Text string

	// Metadata carries flattened document and analysis fields.
	Metadata map[string]interface{}
}

// ChunkID builds the stable identifier for one chunk of a document.
func ChunkID(sourceName string, docID int64, index int) string {
	return fmt.Sprintf("%s_%d_chunk_%d", sourceName, docID, index)
}

// Pipeline processes raw documents into chunks.
type Pipeline struct {
	cleaner  textproc.Cleaner
	chunker  chunker.Chunker
	analyzer analyzer.Analyzer
	logger   *zap.Logger
}

// New creates a pipeline. All three stages are required; pass
// analyzer.NewDisabled() to skip content analysis.
func New(cleaner textproc.Cleaner, ch chunker.Chunker, an analyzer.Analyzer, logger *zap.Logger) (*Pipeline, error) {
	if cleaner == nil {
		return nil, fmt.Errorf("%w: cleaner required", ErrInvalidConfig)
	}
	if ch == nil {
		return nil, fmt.Errorf("%w: chunker required", ErrInvalidConfig)
	}
	if an == nil {
		return nil, fmt.Errorf("%w: analyzer required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cleaner:  cleaner,
		chunker:  ch,
		analyzer: an,
		logger:   logger.Named("pipeline"),
	}, nil
}

// Process cleans, analyzes, and chunks a single document.
//
// The analyzer runs exactly once per document regardless of how many
// chunks result; the analysis fields are copied into every chunk's
// metadata. Returns ErrEmptyDocument for documents with no usable text.
func (p *Pipeline) Process(ctx context.Context, doc loader.RawDocument, sourceName string) ([]Chunk, error) {
	cleaned := p.cleaner.Clean(doc.Content())
	if strings.TrimSpace(cleaned) == "" {
		return nil, fmt.Errorf("%w: document %d", ErrEmptyDocument, doc.ID)
	}

	result, err := p.analyzer.Analyze(ctx, cleaned)
	if err != nil {
		return nil, fmt.Errorf("analyzing document %d: %w", doc.ID, err)
	}

	pieces := p.chunker.Chunk(cleaned)
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: document %d", ErrEmptyDocument, doc.ID)
	}

	chunks := make([]Chunk, len(pieces))
	for i, text := range pieces {
		metadata := buildMetadata(doc, sourceName, result)
		metadata["chunk_index"] = i
		metadata["total_chunks"] = len(pieces)
		metadata["chunk_size"] = len([]rune(text))

		chunks[i] = Chunk{
			ID:       ChunkID(sourceName, doc.ID, i),
			Text:     text,
			Metadata: metadata,
		}
	}

	p.logger.Debug("processed document",
		zap.Int64("doc_id", doc.ID),
		zap.String("source", sourceName),
		zap.Int("chunks", len(chunks)),
		zap.Bool("analysis_exists", result.Exists),
		zap.String("category", result.Category),
	)
	return chunks, nil
}

// buildMetadata flattens the document fields and analysis result into a
// store-friendly map. List fields are comma-joined because vector store
// payloads filter on scalar values.
func buildMetadata(doc loader.RawDocument, sourceName string, result analyzer.Result) map[string]interface{} {
	metadata := map[string]interface{}{
		"source_name":     sourceName,
		"doc_id":          doc.ID,
		"date":            doc.Date,
		"url":             doc.URL,
		"has_detail":      doc.HasDetail(),
		"analysis_exists": result.Exists,
	}

	if result.Exists {
		metadata["category"] = result.Category
		metadata["sentiment"] = result.Sentiment
		metadata["sentiment_score"] = result.SentimentScore
		metadata["importance"] = result.Importance
		metadata["geographic_scope"] = result.GeographicScope
		metadata["temporal_relevance"] = result.TemporalRelevance
		metadata["topics"] = strings.Join(result.Topics, ",")
		metadata["entities"] = strings.Join(result.Entities, ",")
		metadata["keywords"] = strings.Join(result.Keywords, ",")
		metadata["summary"] = result.Summary
		metadata["entity_count"] = result.EntityCount
	}
	return metadata
}
