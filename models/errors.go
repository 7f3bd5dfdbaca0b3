package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for caller-correctable conditions. Callers match them
// with errors.Is after any amount of fmt.Errorf("%w") wrapping.
var (
	// ErrEmptyDocument means a document produced no extractable text.
	ErrEmptyDocument = errors.New("document contains no extractable text")

	// ErrAlreadyExists means a knowledge base or collection name is taken.
	ErrAlreadyExists = errors.New("knowledge base already exists")

	// ErrBuildInProgress means another ingestion is running for the same
	// knowledge base name.
	ErrBuildInProgress = errors.New("ingestion already in progress for this knowledge base")

	// ErrUnknownKnowledgeBase means the named knowledge base does not exist.
	ErrUnknownKnowledgeBase = errors.New("unknown knowledge base")
)

// ExtractionError reports an unreadable or corrupted source document.
// It is fatal for the whole document, never per page.
type ExtractionError struct {
	Filename string
	Err      error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %q: %v", e.Filename, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// RateLimitError reports that the remote provider throttled the request.
// The AI gateway retries these with exponential backoff; once Attempts
// reaches the configured bound the error becomes fatal for the document.
type RateLimitError struct {
	Attempts int
	Err      error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("provider rate limit after %d attempts: %v", e.Attempts, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ProviderError reports a non-retryable provider rejection, e.g. malformed
// input or an invalid API key.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s rejected request: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// GenerationInterruptedError reports a completion stream that failed after
// some answer text had already been produced. Partial holds everything
// emitted before the failure so callers can still surface it.
type GenerationInterruptedError struct {
	Partial string
	Err     error
}

func (e *GenerationInterruptedError) Error() string {
	return fmt.Sprintf("generation interrupted after %d chars: %v", len(e.Partial), e.Err)
}

func (e *GenerationInterruptedError) Unwrap() error { return e.Err }
