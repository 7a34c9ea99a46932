package pipeline_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ImranRahimov1995/SearchNewsRAG/internal/analyzer"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/chunker"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/loader"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/pipeline"
	"github.com/ImranRahimov1995/SearchNewsRAG/internal/textproc"
)

// countingAnalyzer records how many times Analyze is called.
type countingAnalyzer struct {
	calls  atomic.Int32
	result analyzer.Result
	err    error
}

func (a *countingAnalyzer) Analyze(_ context.Context, _ string) (analyzer.Result, error) {
	a.calls.Add(1)
	return a.result, a.err
}

func newTestPipeline(t *testing.T, an analyzer.Analyzer) *pipeline.Pipeline {
	t.Helper()
	ch, err := chunker.NewRecursiveChunker(80, 10, nil)
	require.NoError(t, err)
	p, err := pipeline.New(textproc.NewNewsCleaner(), ch, an, nil)
	require.NoError(t, err)
	return p
}

func TestChunkID(t *testing.T) {
	assert.Equal(t, "qafqazinfo_15_chunk_0", pipeline.ChunkID("qafqazinfo", 15, 0))
	assert.Equal(t, "operativ_7_chunk_3", pipeline.ChunkID("operativ", 7, 3))
}

func TestNew_Validation(t *testing.T) {
	ch, err := chunker.NewRecursiveChunker(80, 10, nil)
	require.NoError(t, err)

	_, err = pipeline.New(nil, ch, analyzer.NewDisabled(), nil)
	assert.ErrorIs(t, err, pipeline.ErrInvalidConfig)

	_, err = pipeline.New(textproc.NewNewsCleaner(), nil, analyzer.NewDisabled(), nil)
	assert.ErrorIs(t, err, pipeline.ErrInvalidConfig)

	_, err = pipeline.New(textproc.NewNewsCleaner(), ch, nil, nil)
	assert.ErrorIs(t, err, pipeline.ErrInvalidConfig)
}

func TestPipeline_AnalyzesOncePerDocument(t *testing.T) {
	an := &countingAnalyzer{result: analyzer.Result{
		Category:   "politics",
		Importance: 7,
		Exists:     true,
	}}
	p := newTestPipeline(t, an)

	// Long enough for several chunks with size 80.
	doc := loader.RawDocument{
		ID:     15,
		Detail: strings.Repeat("Parliament met again to discuss the budget. ", 12),
	}

	chunks, err := p.Process(context.Background(), doc, "qafqazinfo")
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1, "document should split into multiple chunks")

	assert.Equal(t, int32(1), an.calls.Load(), "analyzer must run once per document")

	for i, chunk := range chunks {
		assert.Equal(t, pipeline.ChunkID("qafqazinfo", 15, i), chunk.ID)
		assert.Equal(t, "politics", chunk.Metadata["category"])
		assert.Equal(t, 7, chunk.Metadata["importance"])
		assert.Equal(t, i, chunk.Metadata["chunk_index"])
		assert.Equal(t, len(chunks), chunk.Metadata["total_chunks"])
		assert.Equal(t, true, chunk.Metadata["analysis_exists"])
	}
}

func TestPipeline_Metadata(t *testing.T) {
	an := &countingAnalyzer{result: analyzer.Result{
		Category:          "incidents",
		Sentiment:         "negative",
		SentimentScore:    -0.8,
		Importance:        9,
		GeographicScope:   "local",
		TemporalRelevance: "breaking",
		Topics:            []string{"fire", "rescue"},
		Entities:          []string{"Baku", "MES"},
		Keywords:          []string{"fire", "evacuation"},
		Summary:           "A fire broke out in a residential building.",
		EntityCount:       2,
		Exists:            true,
	}}
	p := newTestPipeline(t, an)

	doc := loader.RawDocument{
		ID:     42,
		Text:   "short preview",
		Detail: "A large fire broke out in a residential building in Baku.",
		Date:   "2025-02-01",
		URL:    "https://example.com/fire",
	}

	chunks, err := p.Process(context.Background(), doc, "operativ")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	md := chunks[0].Metadata
	assert.Equal(t, "operativ", md["source_name"])
	assert.Equal(t, int64(42), md["doc_id"])
	assert.Equal(t, "2025-02-01", md["date"])
	assert.Equal(t, "https://example.com/fire", md["url"])
	assert.Equal(t, true, md["has_detail"])
	assert.Equal(t, "fire,rescue", md["topics"])
	assert.Equal(t, "Baku,MES", md["entities"])
	assert.Equal(t, "fire,evacuation", md["keywords"])
	assert.Equal(t, 2, md["entity_count"])
	assert.Equal(t, -0.8, md["sentiment_score"])
}

func TestPipeline_DisabledAnalyzer(t *testing.T) {
	p := newTestPipeline(t, analyzer.NewDisabled())

	doc := loader.RawDocument{ID: 3, Text: "A short news item about the weather."}
	chunks, err := p.Process(context.Background(), doc, "weathernews")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	md := chunks[0].Metadata
	assert.Equal(t, false, md["analysis_exists"])
	assert.NotContains(t, md, "category")
	assert.NotContains(t, md, "importance")
}

func TestPipeline_EmptyDocument(t *testing.T) {
	p := newTestPipeline(t, analyzer.NewDisabled())

	doc := loader.RawDocument{ID: 9, Text: "🔥🔥🔥"}
	_, err := p.Process(context.Background(), doc, "src")
	assert.ErrorIs(t, err, pipeline.ErrEmptyDocument)
}

func TestPipeline_AnalyzerFailurePropagates(t *testing.T) {
	an := &countingAnalyzer{err: analyzer.ErrAnalysisFailed}
	p := newTestPipeline(t, an)

	doc := loader.RawDocument{ID: 5, Text: "Some article body that is perfectly fine."}
	_, err := p.Process(context.Background(), doc, "src")
	require.Error(t, err)
	assert.ErrorIs(t, err, analyzer.ErrAnalysisFailed)
}

func TestPipeline_DeterministicIDs(t *testing.T) {
	p := newTestPipeline(t, analyzer.NewDisabled())

	doc := loader.RawDocument{
		ID:     11,
		Detail: strings.Repeat("Stable output matters for idempotent upserts. ", 10),
	}

	first, err := p.Process(context.Background(), doc, "src")
	require.NoError(t, err)
	second, err := p.Process(context.Background(), doc, "src")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
		assert.Equal(t, first[i].Text, second[i].Text)
	}
}
