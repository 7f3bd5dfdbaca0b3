package ai

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	genai "github.com/google/generative-ai-go/genai"

	"rag-chatbot-platform/models"
)

// EmbedBatch returns one embedding vector per input text, in input order.
// The provider's batch limit is respected by sub-batching internally;
// results are reassembled so callers never see the split. No caching is
// done here, re-embedding identical text hits the provider again.
func (gc *GeminiClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.embed_batch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("gemini.batch_size", len(texts)),
		attribute.String("gemini.model", gc.embeddingModel),
	)

	model := gc.client.EmbeddingModel(gc.embeddingModel)
	vectors := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += gc.embedBatchSize {
		end := start + gc.embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		sub := texts[start:end]

		batch := model.NewBatch()
		for _, text := range sub {
			batch.AddContent(genai.Text(text))
		}

		var resp *genai.BatchEmbedContentsResponse
		err := gc.withRetry(ctx, func() error {
			var callErr error
			resp, callErr = model.BatchEmbedContents(ctx, batch)
			return callErr
		})
		if err != nil {
			return nil, err
		}
		gc.metrics.RecordEmbeddingBatch(ctx, gc.embeddingModel)

		if len(resp.Embeddings) != len(sub) {
			return nil, &models.ProviderError{
				Provider: "gemini",
				Err:      fmt.Errorf("expected %d embeddings, got %d", len(sub), len(resp.Embeddings)),
			}
		}
		for _, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, &models.ProviderError{
					Provider: "gemini",
					Err:      fmt.Errorf("provider returned an empty embedding"),
				}
			}
			vectors = append(vectors, emb.Values)
		}
	}

	return vectors, nil
}

// EmbedQuery embeds a single query string.
func (gc *GeminiClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := gc.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
