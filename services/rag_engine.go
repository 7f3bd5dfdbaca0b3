package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/models"
)

// Completer streams a completion for a prompt, forwarding each produced
// text chunk to emit. A non-nil error from emit aborts the stream and is
// returned unchanged.
type Completer interface {
	Stream(ctx context.Context, prompt string, emit func(chunk string) error) error
}

// queryState names the phases a single question moves through.
type queryState string

const (
	stateReceived   queryState = "received"
	stateRetrieving queryState = "retrieving"
	statePrompting  queryState = "prompting"
	stateGenerating queryState = "generating"
	stateCompleted  queryState = "completed"
	stateFailed     queryState = "failed"
)

// RAGEngine composes retrieval, conversation memory and the current
// question into a prompt and streams the generated answer back to the
// caller. The completed exchange is appended to memory only when
// generation finishes; a canceled or failed generation never records a
// partial exchange unless the caller opted in.
type RAGEngine struct {
	config    *config.Config
	knowledge *KnowledgeService
	memory    *ConversationMemory
	embedder  Embedder
	completer Completer
	metrics   *telemetry.Metrics
}

func NewRAGEngine(cfg *config.Config, knowledge *KnowledgeService, memory *ConversationMemory,
	embedder Embedder, completer Completer, metrics *telemetry.Metrics) *RAGEngine {
	return &RAGEngine{
		config:    cfg,
		knowledge: knowledge,
		memory:    memory,
		embedder:  embedder,
		completer: completer,
		metrics:   metrics,
	}
}

// Ask answers a question against a knowledge base. It validates the
// knowledge base synchronously, then returns a channel of answer
// fragments: zero or more text fragments followed by exactly one terminal
// fragment, after which the channel is closed. Canceling ctx stops
// fragment delivery.
func (e *RAGEngine) Ask(ctx context.Context, req models.ChatRequest) (<-chan models.AnswerFragment, error) {
	// RECEIVED: the knowledge base must exist before any provider call
	kb, err := e.knowledge.Get(ctx, req.KnowledgeBase)
	if err != nil {
		return nil, err
	}

	// Metadata-only switch; the conversation window is untouched
	e.memory.SetKnowledgeBase(req.SessionID, req.KnowledgeBase)

	fragments := make(chan models.AnswerFragment)
	go e.run(ctx, kb, req, fragments)
	return fragments, nil
}

func (e *RAGEngine) run(ctx context.Context, kb *models.KnowledgeBase, req models.ChatRequest, fragments chan<- models.AnswerFragment) {
	defer close(fragments)

	tracer := otel.Tracer("rag-engine")
	ctx, span := tracer.Start(ctx, "rag.ask")
	defer span.End()
	span.SetAttributes(
		attribute.String("knowledge_base", kb.Name),
		attribute.String("session_id", req.SessionID),
	)

	transition := func(next queryState) {
		span.SetAttributes(attribute.String("rag.state", string(next)))
	}
	fail := func(err error, incomplete bool) {
		transition(stateFailed)
		e.metrics.RecordGenerationFailure(ctx, kb.Name)
		logger.Error("query failed", "session_id", req.SessionID, "knowledge_base", kb.Name, "error", err)
		e.send(ctx, fragments, models.AnswerFragment{Done: true, Incomplete: incomplete, Err: err})
	}

	transition(stateRetrieving)
	retrievalStart := time.Now()
	results, err := e.retrieve(ctx, kb, req.Question)
	if err != nil {
		fail(err, false)
		return
	}
	e.metrics.RecordQuery(ctx, kb.Name, time.Since(retrievalStart).Seconds())
	span.SetAttributes(attribute.Int("rag.retrieved_chunks", len(results)))

	transition(statePrompting)
	window := e.memory.Window(req.SessionID)
	prompt := e.buildPrompt(results, window, req.Question)

	transition(stateGenerating)
	genCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.ProviderTimeoutSeconds)*time.Second)
	defer cancel()

	var answer strings.Builder
	err = e.completer.Stream(genCtx, prompt, func(chunk string) error {
		if !e.send(ctx, fragments, models.AnswerFragment{Text: chunk}) {
			return ctx.Err()
		}
		answer.WriteString(chunk)
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			// Caller canceled: stop forwarding; the partial exchange is
			// only recorded when explicitly requested.
			if req.KeepPartial && answer.Len() > 0 {
				e.memory.Append(req.SessionID, req.Question, answer.String())
			}
			return
		}
		if answer.Len() > 0 {
			err = &models.GenerationInterruptedError{Partial: answer.String(), Err: err}
		}
		fail(err, answer.Len() > 0)
		return
	}

	transition(stateCompleted)
	span.SetAttributes(attribute.Int("rag.answer_chars", answer.Len()))
	e.memory.Append(req.SessionID, req.Question, answer.String())
	e.send(ctx, fragments, models.AnswerFragment{Done: true})
}

// send delivers a fragment unless the caller has gone away. Returns false
// when ctx is done.
func (e *RAGEngine) send(ctx context.Context, fragments chan<- models.AnswerFragment, f models.AnswerFragment) bool {
	select {
	case fragments <- f:
		return true
	case <-ctx.Done():
		return false
	}
}

// retrieve embeds the question and runs the similarity search. Zero
// results is not an error; the prompt handles the empty-context case.
func (e *RAGEngine) retrieve(ctx context.Context, kb *models.KnowledgeBase, question string) ([]models.ScoredChunk, error) {
	embedCtx, cancel := context.WithTimeout(ctx, time.Duration(e.config.ProviderTimeoutSeconds)*time.Second)
	defer cancel()

	queryVector, err := e.embedder.EmbedQuery(embedCtx, question)
	if err != nil {
		return nil, err
	}
	return e.knowledge.Store().Search(ctx, kb.CollectionID, queryVector, e.config.TopK)
}

// buildPrompt assembles retrieved context, the conversation window
// (oldest first) and the current question. When the assembled prompt
// would exceed the model input budget, the lowest-scoring chunks are
// dropped first; conversation history is never dropped.
func (e *RAGEngine) buildPrompt(results []models.ScoredChunk, window []models.Exchange, question string) string {
	header := "You are a helpful AI assistant that answers questions based on the provided document context and the conversation history.\n\n"

	var history strings.Builder
	if len(window) > 0 {
		history.WriteString("Conversation history:\n")
		for _, exchange := range window {
			history.WriteString("Human: ")
			history.WriteString(exchange.Question)
			history.WriteString("\nAssistant: ")
			history.WriteString(exchange.Answer)
			history.WriteString("\n")
		}
		history.WriteString("\n")
	}

	footer := fmt.Sprintf("Current question: %s\n\n"+
		"Use the document context to answer accurately. If the context does not contain the answer, "+
		"say explicitly that it was not found in the documents instead of guessing.\n\nAnswer:", question)

	// Results arrive sorted by descending score, so trimming from the
	// tail removes the lowest-scoring chunks first.
	kept := results
	budget := e.config.PromptCharBudget
	for len(kept) > 0 {
		if len(header)+contextLen(kept)+history.Len()+len(footer) <= budget {
			break
		}
		kept = kept[:len(kept)-1]
	}

	var b strings.Builder
	b.WriteString(header)
	if len(kept) > 0 {
		b.WriteString("Context from documents:\n")
		for i, result := range kept {
			if result.Page > 0 {
				fmt.Fprintf(&b, "[Source %d - %s (Page %d)]:\n%s\n\n", i+1, result.SourceDocument, result.Page, result.Text)
			} else {
				fmt.Fprintf(&b, "[Source %d - %s]:\n%s\n\n", i+1, result.SourceDocument, result.Text)
			}
		}
	} else {
		b.WriteString("No documents matched this question. Answer from the conversation history if possible, " +
			"and state clearly that no supporting documents were found.\n\n")
	}
	b.WriteString(history.String())
	b.WriteString(footer)
	return b.String()
}

func contextLen(results []models.ScoredChunk) int {
	total := 0
	for _, r := range results {
		total += len(r.Text) + 40 // source attribution line
	}
	return total
}

// History returns the session's conversation window, oldest first.
func (e *RAGEngine) History(sessionID string) []models.Exchange {
	return e.memory.Window(sessionID)
}
