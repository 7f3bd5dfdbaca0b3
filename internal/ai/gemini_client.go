package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/models"
)

// GeminiClient reaches the Google Generative AI API for both embeddings and
// streamed completions. All calls go through a shared rate limiter and a
// circuit breaker; transient throttling is retried with bounded exponential
// backoff before surfacing as models.RateLimitError.
type GeminiClient struct {
	client          *genai.Client
	breaker         *gobreaker.CircuitBreaker
	rateLimiter     *rate.Limiter
	generationModel string
	embeddingModel  string
	embedBatchSize  int
	maxRetries      int
	metrics         *telemetry.Metrics
}

type RateLimits struct {
	RPM int // Requests per minute
	TPM int // Tokens per minute
	RPD int // Requests per day
}

func NewGeminiClient(ctx context.Context, cfg *config.Config, metrics *telemetry.Metrics) (*GeminiClient, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("missing GEMINI_API_KEY")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	limits := getRateLimits(cfg.GeminiTier)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})

	// RPM limit with some buffer
	rateLimiter := rate.NewLimiter(rate.Limit(float64(limits.RPM)*0.9/60.0), limits.RPM/10+1)

	return &GeminiClient{
		client:          client,
		breaker:         breaker,
		rateLimiter:     rateLimiter,
		generationModel: cfg.GeminiModel,
		embeddingModel:  cfg.GoogleEmbeddingsModel,
		embedBatchSize:  cfg.EmbedBatchSize,
		maxRetries:      cfg.EmbedMaxRetries,
		metrics:         metrics,
	}, nil
}

func getRateLimits(tier string) RateLimits {
	switch tier {
	case "free":
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	case "tier1":
		return RateLimits{RPM: 1000, TPM: 1000000, RPD: 10000}
	case "tier2":
		return RateLimits{RPM: 2000, TPM: 4000000, RPD: 50000}
	default:
		return RateLimits{RPM: 10, TPM: 250000, RPD: 250}
	}
}

// Stream generates a completion for prompt and forwards each produced text
// chunk to emit as it arrives. A non-nil return from emit cancels the
// stream and is returned unchanged, so callers can abort forwarding.
// Provider failures mid-stream surface as models.GenerationInterruptedError
// carrying the text already emitted.
func (gc *GeminiClient) Stream(ctx context.Context, prompt string, emit func(chunk string) error) error {
	tracer := otel.Tracer("gemini-client")
	ctx, span := tracer.Start(ctx, "gemini.stream_content")
	defer span.End()

	span.SetAttributes(
		attribute.Int("gemini.prompt_chars", len(prompt)),
		attribute.String("gemini.model", gc.generationModel),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return err
	}

	var emitted strings.Builder
	var aborted error

	// The whole stream runs inside the breaker so generation failures
	// count toward tripping it alongside embedding failures. Caller
	// aborts and context cancellation are carried out via aborted so
	// they never register as provider failures.
	_, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.generationModel)
		model.SetTemperature(0.7)
		model.SetMaxOutputTokens(2048)

		iter := model.GenerateContentStream(ctx, genai.Text(prompt))
		for {
			resp, err := iter.Next()
			if err == iterator.Done {
				return nil, nil
			}
			if err != nil {
				if ctx.Err() != nil {
					aborted = ctx.Err()
					return nil, nil
				}
				return nil, err
			}

			chunk := extractText(resp)
			if chunk == "" {
				continue
			}
			emitted.WriteString(chunk)
			if err := emit(chunk); err != nil {
				aborted = err
				return nil, nil
			}
		}
	})
	if aborted != nil {
		return aborted
	}
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		} else {
			span.SetAttributes(attribute.Bool("gemini.error", true))
		}
		classified := gc.classify(err, 1)
		if emitted.Len() > 0 {
			return &models.GenerationInterruptedError{Partial: emitted.String(), Err: classified}
		}
		return classified
	}

	span.SetAttributes(attribute.Int("gemini.answer_chars", emitted.Len()))
	return nil
}

// extractText flattens the text parts of one streamed response.
func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	return b.String()
}

// withRetry runs call, retrying rate-limited attempts with exponential
// backoff up to the configured bound. Non-retryable provider errors return
// immediately as models.ProviderError.
func (gc *GeminiClient) withRetry(ctx context.Context, call func() error) error {
	var lastErr error
	for attempt := 0; attempt <= gc.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff, context aware
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := gc.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		_, err := gc.breaker.Execute(func() (interface{}, error) {
			return nil, call()
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			lastErr = err
			continue
		}
		if !isRateLimited(err) {
			return &models.ProviderError{Provider: "gemini", Err: err}
		}
		lastErr = err
		logger.Debug("provider throttled, backing off", "attempt", attempt+1, "error", err)
	}
	return &models.RateLimitError{Attempts: gc.maxRetries + 1, Err: lastErr}
}

// classify maps a raw provider error onto the error taxonomy.
func (gc *GeminiClient) classify(err error, attempts int) error {
	if isRateLimited(err) {
		return &models.RateLimitError{Attempts: attempts, Err: err}
	}
	return &models.ProviderError{Provider: "gemini", Err: err}
}

// isRateLimited reports whether err is a throttling response worth
// retrying.
func isRateLimited(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 429
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "resource_exhausted") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "quota")
}

// Close releases the underlying API client.
func (gc *GeminiClient) Close() error {
	return gc.client.Close()
}
