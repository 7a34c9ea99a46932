// Package vectorize batches news documents through the processing pipeline
// and into the vector store.
//
// Documents are processed concurrently with per-document failure isolation:
// one bad document never aborts the batch. Concurrency toward the analyzer
// is bounded by an admission gate so a large batch cannot overload the LLM
// provider.
package vectorize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/analyzer"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/chunker"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/embeddings"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/loader"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/pipeline"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/textproc"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorstore"
)

// ErrInvalidConfig indicates invalid service configuration.
var ErrInvalidConfig = errors.New("invalid configuration")

// Processing stages reported in document errors.
const (
	StageProcess = "process"
	StageEmbed   = "embed"
	StageStore   = "store"
)

// FailurePolicy controls what happens when embedding fails for part of a
// document.
type FailurePolicy string

const (
	// DropChunk keeps the document and drops only the chunks whose
	// embedding failed. The default.
	DropChunk FailurePolicy = "drop-chunk"

	// FailDocument marks the whole document failed on any chunk failure.
	FailDocument FailurePolicy = "fail-document"
)

// Valid reports whether p is a recognized policy.
func (p FailurePolicy) Valid() bool {
	return p == DropChunk || p == FailDocument
}

// Default configuration values.
const (
	DefaultChunkSize     = 600
	DefaultChunkOverlap  = 100
	DefaultMaxConcurrent = 50
)

// Config holds batch vectorization settings.
type Config struct {
	// Collection is the target vector store collection. Empty uses the
	// store default.
	Collection string

	// ChunkSize is the target chunk size in characters.
	ChunkSize int

	// ChunkOverlap is the number of characters carried between chunks.
	ChunkOverlap int

	// MaxConcurrent bounds concurrent analyzer calls across the batch.
	MaxConcurrent int

	// AnalyzerMode selects the analysis strategy. Sequential mode forces
	// one analyzer call at a time regardless of MaxConcurrent.
	AnalyzerMode analyzer.Mode

	// OnChunkFailure is the embedding failure policy.
	OnChunkFailure FailurePolicy
}

// ApplyDefaults fills unset fields with defaults.
func (c *Config) ApplyDefaults() {
	if c.ChunkSize == 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.ChunkOverlap == 0 {
		c.ChunkOverlap = DefaultChunkOverlap
	}
	if c.MaxConcurrent == 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.AnalyzerMode == "" {
		c.AnalyzerMode = analyzer.ModeConcurrent
	}
	if c.OnChunkFailure == "" {
		c.OnChunkFailure = DropChunk
	}
}

// Validate checks the configuration. Invalid settings fail here, before
// any document is touched.
func (c Config) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap cannot be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d", ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("%w: max concurrent must be positive, got %d", ErrInvalidConfig, c.MaxConcurrent)
	}
	if !c.AnalyzerMode.Valid() {
		return fmt.Errorf("%w: unrecognized analyzer mode %q", ErrInvalidConfig, c.AnalyzerMode)
	}
	if !c.OnChunkFailure.Valid() {
		return fmt.Errorf("%w: unrecognized failure policy %q", ErrInvalidConfig, c.OnChunkFailure)
	}
	return nil
}

// DocError describes why one document failed.
type DocError struct {
	DocID int64  `json:"doc_id"`
	Stage string `json:"stage"`
	Msg   string `json:"msg"`
}

func (e DocError) Error() string {
	return fmt.Sprintf("document %d failed at %s: %s", e.DocID, e.Stage, e.Msg)
}

// Outcome is the per-document result, indexed by batch position.
type Outcome struct {
	DocID        int64
	ChunksStored int
	Err          *DocError
}

// Result aggregates a batch run.
type Result struct {
	TotalDocuments int
	Processed      int
	Failed         int
	ChunksStored   int
	Duration       time.Duration
	Outcomes       []Outcome
	Errors         []DocError
}

// Service runs batches of documents through the pipeline into the store.
type Service struct {
	config   Config
	pipeline *pipeline.Pipeline
	embedder embeddings.Embedder
	store    vectorstore.Store
	gate     *gate
	logger   *zap.Logger
	metrics  *Metrics
}

// NewService builds a batch service around the given analyzer, embedder,
// and store. The configuration is validated up front.
func NewService(cfg Config, an analyzer.Analyzer, embedder embeddings.Embedder, store vectorstore.Store, logger *zap.Logger) (*Service, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if an == nil {
		return nil, fmt.Errorf("%w: analyzer required", ErrInvalidConfig)
	}
	if embedder == nil {
		return nil, fmt.Errorf("%w: embedder required", ErrInvalidConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: store required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("vectorize")

	slots := cfg.MaxConcurrent
	if cfg.AnalyzerMode == analyzer.ModeSequential {
		slots = 1
	}
	g := newGate(slots)

	ch, err := chunker.NewRecursiveChunker(cfg.ChunkSize, cfg.ChunkOverlap, nil)
	if err != nil {
		return nil, err
	}

	// The gate wraps only the analyzer, so a slot is held for the duration
	// of the LLM call and nothing else. Cleaning, chunking, embedding, and
	// storage run outside the gate.
	p, err := pipeline.New(textproc.NewNewsCleaner(), ch, &gatedAnalyzer{inner: an, gate: g}, logger)
	if err != nil {
		return nil, err
	}

	return &Service{
		config:   cfg,
		pipeline: p,
		embedder: embedder,
		store:    store,
		gate:     g,
		logger:   logger,
		metrics:  NewMetrics(logger),
	}, nil
}

// Vectorize processes all documents concurrently and stores their chunks.
//
// The returned Result always covers every input document: outcomes are
// recorded at the document's batch index, so order is stable regardless of
// completion order. A batch-level error is returned only for an empty
// batch; per-document failures live in Result.Errors.
func (s *Service) Vectorize(ctx context.Context, docs []loader.RawDocument, sourceName string) (Result, error) {
	if len(docs) == 0 {
		return Result{}, fmt.Errorf("%w: no documents to vectorize", ErrInvalidConfig)
	}

	start := time.Now()
	s.logger.Info("starting batch vectorization",
		zap.Int("documents", len(docs)),
		zap.String("source", sourceName),
		zap.String("analyzer_mode", string(s.config.AnalyzerMode)),
		zap.Int("max_concurrent", s.config.MaxConcurrent),
	)

	outcomes := make([]Outcome, len(docs))
	var wg sync.WaitGroup
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = s.processDocument(ctx, docs[i], sourceName)
		}(i)
	}
	wg.Wait()

	result := Result{
		TotalDocuments: len(docs),
		Duration:       time.Since(start),
		Outcomes:       outcomes,
	}
	for _, o := range outcomes {
		if o.Err != nil {
			result.Failed++
			result.Errors = append(result.Errors, *o.Err)
			continue
		}
		result.Processed++
		result.ChunksStored += o.ChunksStored
	}

	s.metrics.RecordBatch(ctx, result)
	s.logger.Info("batch vectorization finished",
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("chunks_stored", result.ChunksStored),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (s *Service) processDocument(ctx context.Context, doc loader.RawDocument, sourceName string) Outcome {
	outcome := Outcome{DocID: doc.ID}

	chunks, err := s.pipeline.Process(ctx, doc, sourceName)
	if err != nil {
		outcome.Err = &DocError{DocID: doc.ID, Stage: StageProcess, Msg: err.Error()}
		s.logger.Warn("document processing failed",
			zap.Int64("doc_id", doc.ID),
			zap.Error(err),
		)
		return outcome
	}

	stored, err := s.embedAndStore(ctx, chunks)
	if err != nil {
		stage := StageEmbed
		if errors.Is(err, vectorstore.ErrStorageFailed) {
			stage = StageStore
		}
		outcome.Err = &DocError{DocID: doc.ID, Stage: stage, Msg: err.Error()}
		s.logger.Warn("document storage failed",
			zap.Int64("doc_id", doc.ID),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return outcome
	}

	outcome.ChunksStored = stored
	return outcome
}

// embedAndStore embeds the chunk texts and upserts them. On embedding
// failure the DropChunk policy retries chunks one at a time and keeps the
// survivors; FailDocument propagates the error.
func (s *Service) embedAndStore(ctx context.Context, chunks []pipeline.Chunk) (int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		if s.config.OnChunkFailure == FailDocument {
			return 0, err
		}
		chunks, vectors = s.embedIndividually(ctx, chunks)
		if len(chunks) == 0 {
			return 0, err
		}
	}

	docs := make([]vectorstore.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = vectorstore.Document{
			ID:         c.ID,
			Content:    c.Text,
			Vector:     vectors[i],
			Metadata:   c.Metadata,
			Collection: s.config.Collection,
		}
	}

	if _, err := s.store.UpsertDocuments(ctx, docs); err != nil {
		if !errors.Is(err, vectorstore.ErrStorageFailed) {
			err = fmt.Errorf("%w: %v", vectorstore.ErrStorageFailed, err)
		}
		return 0, err
	}
	return len(docs), nil
}

func (s *Service) embedIndividually(ctx context.Context, chunks []pipeline.Chunk) ([]pipeline.Chunk, [][]float32) {
	var kept []pipeline.Chunk
	var vectors [][]float32
	for _, c := range chunks {
		vec, err := s.embedder.EmbedQuery(ctx, c.Text)
		if err != nil {
			s.logger.Warn("dropping chunk after embedding failure",
				zap.String("chunk_id", c.ID),
				zap.Error(err),
			)
			continue
		}
		kept = append(kept, c)
		vectors = append(vectors, vec)
	}
	return kept, vectors
}

// gate is a counting semaphore bounding concurrent analyzer calls.
type gate struct {
	slots chan struct{}
}

func newGate(n int) *gate {
	return &gate{slots: make(chan struct{}, n)}
}

func (g *gate) acquire(ctx context.Context) error {
	select {
	case g.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (g *gate) release() {
	<-g.slots
}

// gatedAnalyzer holds a gate slot only for the duration of the analyzer
// call.
type gatedAnalyzer struct {
	inner analyzer.Analyzer
	gate  *gate
}

func (a *gatedAnalyzer) Analyze(ctx context.Context, text string) (analyzer.Result, error) {
	if err := a.gate.acquire(ctx); err != nil {
		return analyzer.Result{}, fmt.Errorf("%w: %v", analyzer.ErrAnalysisFailed, err)
	}
	defer a.gate.release()
	return a.inner.Analyze(ctx, text)
}

var _ analyzer.Analyzer = (*gatedAnalyzer)(nil)
