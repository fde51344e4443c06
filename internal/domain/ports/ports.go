// Package ports defines interfaces for external dependencies.
// Clean Architecture: usecases depend on these abstractions, adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

// EmbeddingService turns text into fixed-dimension vectors.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch embeds texts in order. It is equivalent to calling Embed
	// for each text and exists for throughput only.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector size, or 0 if not known until first call.
	Dimensions() int

	// ModelName identifies the embedding model, recorded in index manifests.
	ModelName() string
}

// LLMService generates text from a prompt.
type LLMService interface {
	// Generate returns the full completion for prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// GenerateStream returns a finite, one-shot stream of fragments.
	// The channel is closed when generation ends. Cancelling ctx stops the
	// producer and releases the underlying connection.
	GenerateStream(ctx context.Context, prompt string) (<-chan StreamToken, error)

	// ModelName identifies the model.
	ModelName() string
}

// StreamToken represents a single fragment in a streaming LLM response.
type StreamToken struct {
	Content string
	Done    bool
	Error   error
}

// VectorIndex is an immutable, searchable set of embedded chunks.
// Implementations must be safe for concurrent Search calls.
type VectorIndex interface {
	// Search returns at most min(k, Len()) hits, most similar first.
	// Equal scores keep insertion order.
	Search(ctx context.Context, query []float32, k int) ([]entities.SearchHit, error)

	// Len returns the number of indexed chunks.
	Len() int

	// Dimensions returns the vector size of the index.
	Dimensions() int

	// Kind names the backend ("flat", "sqlite", "bolt").
	Kind() string

	// Save persists the index into dir so that it can be reloaded with no other input.
	Save(ctx context.Context, dir string, meta IndexMeta) error

	// Close releases resources held by the index.
	Close() error
}

// IndexMeta is descriptive data recorded alongside a saved index.
type IndexMeta struct {
	EmbeddingModel string
	ChunkSize      int
	ChunkOverlap   int
}

// IndexBackend builds and loads one kind of VectorIndex.
type IndexBackend interface {
	Kind() string
	Build(ctx context.Context, entries []entities.IndexEntry) (VectorIndex, error)
	Load(ctx context.Context, dir string) (VectorIndex, error)
}

// IndexStore resolves backends and opens saved indexes of any kind.
type IndexStore interface {
	// Backend returns the backend for kind.
	Backend(kind string) (IndexBackend, error)

	// Open loads the index saved in dir, whatever its kind.
	// Missing data yields entities.ErrIndexNotFound, unreadable data entities.ErrIndexCorrupt.
	Open(ctx context.Context, dir string) (VectorIndex, error)
}

// DocumentParser extracts per-page text from a document file.
type DocumentParser interface {
	// ParsePages returns the pages of the file at path, 1-based.
	ParsePages(ctx context.Context, path string) ([]entities.Page, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// DocumentLoader reads every matching document of a directory.
type DocumentLoader interface {
	// LoadDirectory fails with entities.ErrNotFound if dir is missing or has no documents.
	LoadDirectory(ctx context.Context, dir string) ([]entities.Document, error)
}

// ProgressReporter receives progress of long-running batch work.
type ProgressReporter interface {
	Start(total int, label string)
	Add(n int)
	Finish()
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
	FileRenamed
)

func (op FileOperation) String() string {
	switch op {
	case FileCreated:
		return "created"
	case FileModified:
		return "modified"
	case FileDeleted:
		return "deleted"
	case FileRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}
