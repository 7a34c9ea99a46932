package vectorize

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/ImranRahimov1995/SearchNewsRAG/internal/vectorize"

// Metrics holds batch vectorization metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	documents metric.Int64Counter
	failures  metric.Int64Counter
	chunks    metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics creates a Metrics instance for the batch service.
func NewMetrics(logger *zap.Logger) *Metrics {
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.documents, err = m.meter.Int64Counter(
		"newsrag.vectorize.documents_total",
		metric.WithDescription("Total documents processed successfully"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create documents counter", zap.Error(err))
	}

	m.failures, err = m.meter.Int64Counter(
		"newsrag.vectorize.failures_total",
		metric.WithDescription("Total documents that failed processing"),
		metric.WithUnit("{document}"),
	)
	if err != nil {
		m.logger.Warn("failed to create failures counter", zap.Error(err))
	}

	m.chunks, err = m.meter.Int64Counter(
		"newsrag.vectorize.chunks_stored_total",
		metric.WithDescription("Total chunks upserted into the vector store"),
		metric.WithUnit("{chunk}"),
	)
	if err != nil {
		m.logger.Warn("failed to create chunks counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"newsrag.vectorize.batch_duration_seconds",
		metric.WithDescription("Duration of batch vectorization runs in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}
}

// RecordBatch records one completed batch run.
func (m *Metrics) RecordBatch(ctx context.Context, result Result) {
	if m.documents != nil {
		m.documents.Add(ctx, int64(result.Processed))
	}
	if m.failures != nil {
		m.failures.Add(ctx, int64(result.Failed))
	}
	if m.chunks != nil {
		m.chunks.Add(ctx, int64(result.ChunksStored))
	}
	if m.duration != nil {
		m.duration.Record(ctx, result.Duration.Seconds())
	}
}
