package vectorize_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/analyzer"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/loader"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorize"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorstore"
)

// trackingAnalyzer records peak concurrent Analyze calls.
type trackingAnalyzer struct {
	current atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
	failFor map[int64]bool
	mu      sync.Mutex
	seen    []string
}

func (a *trackingAnalyzer) Analyze(_ context.Context, text string) (analyzer.Result, error) {
	cur := a.current.Add(1)
	for {
		peak := a.peak.Load()
		if cur <= peak || a.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	a.current.Add(-1)

	a.mu.Lock()
	a.seen = append(a.seen, text)
	a.mu.Unlock()

	return analyzer.Result{Category: "other", Importance: 5, Exists: true}, nil
}

// failingAnalyzer fails for specific document texts.
type failingAnalyzer struct {
	failSubstring string
}

func (a *failingAnalyzer) Analyze(_ context.Context, text string) (analyzer.Result, error) {
	if a.failSubstring != "" && strings.Contains(text, a.failSubstring) {
		return analyzer.Result{}, fmt.Errorf("%w: model unavailable", analyzer.ErrAnalysisFailed)
	}
	return analyzer.Result{Category: "other", Importance: 5, Exists: true}, nil
}

// stubEmbedder returns fixed-size vectors; batch calls can be forced to
// fail while individual calls succeed or fail per text.
type stubEmbedder struct {
	failBatch      bool
	failTexts      map[string]bool
	batchCalls     atomic.Int32
	singleCalls    atomic.Int32
	failAllSingles bool
}

func (e *stubEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	e.batchCalls.Add(1)
	if e.failBatch {
		return nil, fmt.Errorf("batch embedding unavailable")
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{0.1, 0.2, 0.3, 0.4}
	}
	return vectors, nil
}

func (e *stubEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	e.singleCalls.Add(1)
	if e.failAllSingles || e.failTexts[text] {
		return nil, fmt.Errorf("embedding unavailable for text")
	}
	return []float32{0.1, 0.2, 0.3, 0.4}, nil
}

// memoryStore is an in-memory Store recording upserted documents.
type memoryStore struct {
	mu      sync.Mutex
	docs    map[string]vectorstore.Document
	failUps bool
}

func newMemoryStore() *memoryStore {
	return &memoryStore{docs: make(map[string]vectorstore.Document)}
}

func (m *memoryStore) UpsertDocuments(_ context.Context, docs []vectorstore.Document) ([]string, error) {
	if m.failUps {
		return nil, fmt.Errorf("%w: backend down", vectorstore.ErrStorageFailed)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(docs))
	for i, d := range docs {
		m.docs[d.ID] = d
		ids[i] = d.ID
	}
	return ids, nil
}

func (m *memoryStore) Search(context.Context, string, int) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memoryStore) SearchInCollection(context.Context, string, string, int, map[string]interface{}) ([]vectorstore.SearchResult, error) {
	return nil, nil
}

func (m *memoryStore) DeleteDocuments(context.Context, string, []string) error  { return nil }
func (m *memoryStore) CreateCollection(context.Context, string, int) error      { return nil }
func (m *memoryStore) DeleteCollection(context.Context, string) error           { return nil }
func (m *memoryStore) CollectionExists(context.Context, string) (bool, error)   { return true, nil }
func (m *memoryStore) ListCollections(context.Context) ([]string, error)        { return nil, nil }
func (m *memoryStore) Close() error                                             { return nil }
func (m *memoryStore) GetCollectionInfo(context.Context, string) (*vectorstore.CollectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &vectorstore.CollectionInfo{PointCount: len(m.docs)}, nil
}

func (m *memoryStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func makeDocs(n int) []loader.RawDocument {
	docs := make([]loader.RawDocument, n)
	for i := range docs {
		docs[i] = loader.RawDocument{
			ID:   int64(i + 1),
			Text: fmt.Sprintf("Document number %d reports on local developments in detail.", i+1),
		}
	}
	return docs
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name string
		cfg  vectorize.Config
	}{
		{"negative chunk size", vectorize.Config{ChunkSize: -1, ChunkOverlap: 10, MaxConcurrent: 1, AnalyzerMode: analyzer.ModeDisabled, OnChunkFailure: vectorize.DropChunk}},
		{"overlap >= size", vectorize.Config{ChunkSize: 100, ChunkOverlap: 100, MaxConcurrent: 1, AnalyzerMode: analyzer.ModeDisabled, OnChunkFailure: vectorize.DropChunk}},
		{"negative concurrency", vectorize.Config{ChunkSize: 100, ChunkOverlap: 10, MaxConcurrent: -2, AnalyzerMode: analyzer.ModeDisabled, OnChunkFailure: vectorize.DropChunk}},
		{"bad analyzer mode", vectorize.Config{ChunkSize: 100, ChunkOverlap: 10, MaxConcurrent: 1, AnalyzerMode: "turbo", OnChunkFailure: vectorize.DropChunk}},
		{"bad failure policy", vectorize.Config{ChunkSize: 100, ChunkOverlap: 10, MaxConcurrent: 1, AnalyzerMode: analyzer.ModeDisabled, OnChunkFailure: "ignore"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := vectorize.NewService(tt.cfg, analyzer.NewDisabled(), &stubEmbedder{}, newMemoryStore(), nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, vectorize.ErrInvalidConfig)
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	cfg := vectorize.Config{}
	cfg.ApplyDefaults()
	assert.Equal(t, vectorize.DefaultChunkSize, cfg.ChunkSize)
	assert.Equal(t, vectorize.DefaultChunkOverlap, cfg.ChunkOverlap)
	assert.Equal(t, vectorize.DefaultMaxConcurrent, cfg.MaxConcurrent)
	assert.Equal(t, analyzer.ModeConcurrent, cfg.AnalyzerMode)
	assert.Equal(t, vectorize.DropChunk, cfg.OnChunkFailure)
}

func TestVectorize_BoundsAnalyzerConcurrency(t *testing.T) {
	an := &trackingAnalyzer{delay: 20 * time.Millisecond}
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 2}, an, &stubEmbedder{}, newMemoryStore(), nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(8), "src")
	require.NoError(t, err)

	assert.Equal(t, 8, result.Processed)
	assert.LessOrEqual(t, an.peak.Load(), int32(2), "analyzer concurrency must not exceed the gate")
}

func TestVectorize_SequentialModeSingleFlight(t *testing.T) {
	an := &trackingAnalyzer{delay: 10 * time.Millisecond}
	svc, err := vectorize.NewService(vectorize.Config{
		MaxConcurrent: 50,
		AnalyzerMode:  analyzer.ModeSequential,
	}, an, &stubEmbedder{}, newMemoryStore(), nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(5), "src")
	require.NoError(t, err)

	assert.Equal(t, 5, result.Processed)
	assert.Equal(t, int32(1), an.peak.Load(), "sequential mode must analyze one document at a time")
}

func TestVectorize_PartialFailureIsolation(t *testing.T) {
	// Document 3 fails analysis; the other four must still be stored.
	an := &failingAnalyzer{failSubstring: "number 3"}
	store := newMemoryStore()
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 4}, an, &stubEmbedder{}, store, nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(5), "src")
	require.NoError(t, err)

	assert.Equal(t, 5, result.TotalDocuments)
	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, int64(3), result.Errors[0].DocID)
	assert.Equal(t, vectorize.StageProcess, result.Errors[0].Stage)
	assert.Positive(t, store.count())
}

func TestVectorize_OutcomesKeepInputOrder(t *testing.T) {
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 8}, analyzer.NewDisabled(), &stubEmbedder{}, newMemoryStore(), nil)
	require.NoError(t, err)

	docs := makeDocs(6)
	result, err := svc.Vectorize(context.Background(), docs, "src")
	require.NoError(t, err)

	require.Len(t, result.Outcomes, 6)
	for i, o := range result.Outcomes {
		assert.Equal(t, docs[i].ID, o.DocID)
	}
}

func TestVectorize_StorageFailure(t *testing.T) {
	store := newMemoryStore()
	store.failUps = true
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 2}, analyzer.NewDisabled(), &stubEmbedder{}, store, nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(2), "src")
	require.NoError(t, err)

	assert.Equal(t, 2, result.Failed)
	for _, e := range result.Errors {
		assert.Equal(t, vectorize.StageStore, e.Stage)
	}
}

func TestVectorize_DropChunkPolicy(t *testing.T) {
	// Batch embedding fails, per-chunk retry succeeds: chunks survive.
	emb := &stubEmbedder{failBatch: true}
	store := newMemoryStore()
	svc, err := vectorize.NewService(vectorize.Config{
		MaxConcurrent:  2,
		OnChunkFailure: vectorize.DropChunk,
	}, analyzer.NewDisabled(), emb, store, nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(1), "src")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Processed)
	assert.Positive(t, result.ChunksStored)
	assert.Positive(t, emb.singleCalls.Load())
}

func TestVectorize_DropChunkAllFail(t *testing.T) {
	emb := &stubEmbedder{failBatch: true, failAllSingles: true}
	svc, err := vectorize.NewService(vectorize.Config{
		MaxConcurrent:  2,
		OnChunkFailure: vectorize.DropChunk,
	}, analyzer.NewDisabled(), emb, newMemoryStore(), nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(1), "src")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, vectorize.StageEmbed, result.Errors[0].Stage)
}

func TestVectorize_FailDocumentPolicy(t *testing.T) {
	emb := &stubEmbedder{failBatch: true}
	svc, err := vectorize.NewService(vectorize.Config{
		MaxConcurrent:  2,
		OnChunkFailure: vectorize.FailDocument,
	}, analyzer.NewDisabled(), emb, newMemoryStore(), nil)
	require.NoError(t, err)

	result, err := svc.Vectorize(context.Background(), makeDocs(1), "src")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Failed)
	assert.Zero(t, emb.singleCalls.Load(), "fail-document must not retry chunks individually")
}

func TestVectorize_EndToEnd(t *testing.T) {
	an := &trackingAnalyzer{}
	store := newMemoryStore()
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 2}, an, &stubEmbedder{}, store, nil)
	require.NoError(t, err)

	docs := []loader.RawDocument{
		{
			ID:     1,
			Text:   "short preview",
			Detail: "Parliament approved the budget after a long session.",
			Date:   "2025-03-01",
			URL:    "https://example.com/1",
		},
		{ID: 2, Text: "A fire broke out in the old town district overnight."},
	}

	result, err := svc.Vectorize(context.Background(), docs, "qafqazinfo")
	require.NoError(t, err)

	assert.Equal(t, 2, result.TotalDocuments)
	assert.Equal(t, 2, result.Processed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 2, result.ChunksStored)
	assert.Positive(t, result.Duration)

	first, ok := store.docs["qafqazinfo_1_chunk_0"]
	require.True(t, ok)
	assert.NotEmpty(t, first.Content)
	assert.Len(t, first.Vector, 4)
	assert.Equal(t, "qafqazinfo", first.Metadata["source_name"])
	assert.Equal(t, int64(1), first.Metadata["doc_id"])
	assert.Equal(t, "2025-03-01", first.Metadata["date"])
	assert.Equal(t, "other", first.Metadata["category"])
	assert.Equal(t, true, first.Metadata["analysis_exists"])

	second, ok := store.docs["qafqazinfo_2_chunk_0"]
	require.True(t, ok)
	assert.Equal(t, int64(2), second.Metadata["doc_id"])
	assert.Equal(t, false, second.Metadata["has_detail"])
}

func TestVectorize_IdempotentChunkIDs(t *testing.T) {
	store := newMemoryStore()
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 2}, analyzer.NewDisabled(), &stubEmbedder{}, store, nil)
	require.NoError(t, err)

	docs := makeDocs(3)
	first, err := svc.Vectorize(context.Background(), docs, "src")
	require.NoError(t, err)
	countAfterFirst := store.count()

	second, err := svc.Vectorize(context.Background(), docs, "src")
	require.NoError(t, err)

	assert.Equal(t, first.ChunksStored, second.ChunksStored)
	assert.Equal(t, countAfterFirst, store.count(), "re-running the same batch must not grow the store")
}

func TestVectorize_EmptyBatch(t *testing.T) {
	svc, err := vectorize.NewService(vectorize.Config{}, analyzer.NewDisabled(), &stubEmbedder{}, newMemoryStore(), nil)
	require.NoError(t, err)

	_, err = svc.Vectorize(context.Background(), nil, "src")
	require.Error(t, err)
	assert.ErrorIs(t, err, vectorize.ErrInvalidConfig)
}

func TestVectorize_ContextCancellation(t *testing.T) {
	an := &trackingAnalyzer{delay: 50 * time.Millisecond}
	svc, err := vectorize.NewService(vectorize.Config{MaxConcurrent: 1}, an, &stubEmbedder{}, newMemoryStore(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := svc.Vectorize(ctx, makeDocs(3), "src")
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalDocuments)
	// Every document gets an outcome, none hang.
	assert.Equal(t, 3, result.Processed+result.Failed)
}
