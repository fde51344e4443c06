package entities

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every layer. Callers classify with errors.Is.
var (
	// ErrValidation marks bad caller input.
	ErrValidation = errors.New("invalid request")

	// ErrNotFound marks missing directories or files at ingestion time.
	ErrNotFound = errors.New("not found")

	// ErrProvider marks a failed or timed out embedding/LLM call.
	ErrProvider = errors.New("provider error")

	// ErrGeneration marks a failed answer generation.
	ErrGeneration = errors.New("generation failed")

	// ErrServiceUnavailable means no index is loaded or it is empty.
	ErrServiceUnavailable = errors.New("service unavailable: no index loaded")

	// ErrConflict means a rebuild is already running.
	ErrConflict = errors.New("index rebuild already in progress")

	// ErrIndexNotFound means the persisted index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt means the persisted index exists but cannot be read.
	ErrIndexCorrupt = errors.New("index corrupt")
)

// ProviderError describes a failed call to an external model provider.
type ProviderError struct {
	Provider   string // "openai", "ollama", ...
	Op         string // "embeddings", "generate", ...
	StatusCode int    // HTTP status, 0 if the request never completed
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: status %d: %v", e.Provider, e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Provider, e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Is reports ProviderError as ErrProvider.
func (e *ProviderError) Is(target error) bool { return target == ErrProvider }

// Retryable reports whether the failure is worth retrying: throttling,
// server errors and transport failures.
func (e *ProviderError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode == 429 || e.StatusCode >= 500
}
