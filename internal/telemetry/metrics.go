package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds all application metrics.
type Metrics struct {
	DocumentsIngested  metric.Int64Counter
	ChunksUpserted     metric.Int64Counter
	IngestionDuration  metric.Float64Histogram
	QueriesServed      metric.Int64Counter
	RetrievalDuration  metric.Float64Histogram
	EmbeddingBatches   metric.Int64Counter
	GenerationFailures metric.Int64Counter
}

// InitMetrics initializes all application metrics.
func InitMetrics() (*Metrics, error) {
	meter := otel.Meter("rag-chatbot-platform")

	documentsIngested, err := meter.Int64Counter(
		"ingestion.documents.total",
		metric.WithDescription("Documents successfully ingested"),
	)
	if err != nil {
		return nil, err
	}

	chunksUpserted, err := meter.Int64Counter(
		"ingestion.chunks.total",
		metric.WithDescription("Embedded chunks written to collections"),
	)
	if err != nil {
		return nil, err
	}

	ingestionDuration, err := meter.Float64Histogram(
		"ingestion.duration",
		metric.WithDescription("Document ingestion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queriesServed, err := meter.Int64Counter(
		"rag.queries.total",
		metric.WithDescription("RAG queries served"),
	)
	if err != nil {
		return nil, err
	}

	retrievalDuration, err := meter.Float64Histogram(
		"rag.retrieval.duration",
		metric.WithDescription("Similarity retrieval duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	embeddingBatches, err := meter.Int64Counter(
		"embedding.batches.total",
		metric.WithDescription("Embedding batches sent to the provider"),
	)
	if err != nil {
		return nil, err
	}

	generationFailures, err := meter.Int64Counter(
		"rag.generation.failures",
		metric.WithDescription("Streaming generations that ended in failure"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		DocumentsIngested:  documentsIngested,
		ChunksUpserted:     chunksUpserted,
		IngestionDuration:  ingestionDuration,
		QueriesServed:      queriesServed,
		RetrievalDuration:  retrievalDuration,
		EmbeddingBatches:   embeddingBatches,
		GenerationFailures: generationFailures,
	}, nil
}

// RecordIngestion records one completed ingestion.
func (m *Metrics) RecordIngestion(ctx context.Context, kb string, chunks int, seconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("knowledge_base", kb))
	m.DocumentsIngested.Add(ctx, 1, attrs)
	m.ChunksUpserted.Add(ctx, int64(chunks), attrs)
	m.IngestionDuration.Record(ctx, seconds, attrs)
}

// RecordEmbeddingBatch records one batch request sent to the embedding
// provider.
func (m *Metrics) RecordEmbeddingBatch(ctx context.Context, model string) {
	if m == nil {
		return
	}
	m.EmbeddingBatches.Add(ctx, 1, metric.WithAttributes(attribute.String("model", model)))
}

// RecordGenerationFailure records one failed streaming generation.
func (m *Metrics) RecordGenerationFailure(ctx context.Context, kb string) {
	if m == nil {
		return
	}
	m.GenerationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("knowledge_base", kb)))
}

// RecordQuery records one served query.
func (m *Metrics) RecordQuery(ctx context.Context, kb string, retrievalSeconds float64) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("knowledge_base", kb))
	m.QueriesServed.Add(ctx, 1, attrs)
	m.RetrievalDuration.Record(ctx, retrievalSeconds, attrs)
}
