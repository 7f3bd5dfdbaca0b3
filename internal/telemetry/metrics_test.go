package telemetry

import (
	"context"
	"testing"
)

func TestNilMetricsRecordersAreNoOps(t *testing.T) {
	// Services accept a nil *Metrics in tests; every recorder must
	// tolerate it.
	var m *Metrics
	ctx := context.Background()

	m.RecordIngestion(ctx, "kb", 3, 1.5)
	m.RecordQuery(ctx, "kb", 0.1)
	m.RecordEmbeddingBatch(ctx, "text-embedding-004")
	m.RecordGenerationFailure(ctx, "kb")
}

func TestInitMetricsRegistersAllInstruments(t *testing.T) {
	m, err := InitMetrics()
	if err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	if m.DocumentsIngested == nil || m.ChunksUpserted == nil || m.IngestionDuration == nil ||
		m.QueriesServed == nil || m.RetrievalDuration == nil ||
		m.EmbeddingBatches == nil || m.GenerationFailures == nil {
		t.Error("InitMetrics left an instrument unset")
	}

	// Recording through the default no-op meter must not panic.
	ctx := context.Background()
	m.RecordEmbeddingBatch(ctx, "text-embedding-004")
	m.RecordGenerationFailure(ctx, "kb")
}
