package models

import (
	"errors"
	"fmt"
	"testing"
)

func TestSentinelsSurviveWrapping(t *testing.T) {
	tests := []struct {
		name     string
		sentinel error
	}{
		{"empty document", ErrEmptyDocument},
		{"already exists", ErrAlreadyExists},
		{"build in progress", ErrBuildInProgress},
		{"unknown knowledge base", ErrUnknownKnowledgeBase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", tt.sentinel))
			if !errors.Is(wrapped, tt.sentinel) {
				t.Errorf("errors.Is failed through double wrapping")
			}
		})
	}
}

func TestTypedErrorsUnwrap(t *testing.T) {
	cause := errors.New("root cause")

	extraction := &ExtractionError{Filename: "doc.pdf", Err: cause}
	if !errors.Is(extraction, cause) {
		t.Error("ExtractionError does not unwrap to its cause")
	}

	rate := &RateLimitError{Attempts: 4, Err: cause}
	interrupted := &GenerationInterruptedError{Partial: "some text", Err: rate}

	// The chain stays matchable through nesting.
	var rateErr *RateLimitError
	if !errors.As(interrupted, &rateErr) {
		t.Fatal("RateLimitError not found inside GenerationInterruptedError")
	}
	if rateErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", rateErr.Attempts)
	}
	if !errors.Is(interrupted, cause) {
		t.Error("nested chain lost the root cause")
	}
}

func TestProviderErrorMessage(t *testing.T) {
	err := &ProviderError{Provider: "gemini", Err: errors.New("invalid key")}
	want := `provider gemini rejected request: invalid key`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
