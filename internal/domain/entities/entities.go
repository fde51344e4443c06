// Package entities contains core business entities.
// These are the enterprise business rules - pure domain objects with no external dependencies.
package entities

import "time"

// UnknownFile is reported for chunks whose source file name was lost.
const UnknownFile = "unknown"

// ExcerptLength is the number of characters of chunk text shown in a Source.
const ExcerptLength = 200

// Page is the extracted text of one PDF page.
type Page struct {
	Number int // 1-based
	Text   string
}

// Document represents a source PDF split into pages.
type Document struct {
	Name       string // basename, used for citation
	Path       string
	Pages      []Page
	ModifiedAt time.Time
}

// Chunk is a bounded slice of document text, the unit of retrieval.
// Chunks are immutable once created by the chunker.
type Chunk struct {
	ID         string
	Text       string
	SourceFile string
	PageNumber int // 0 when unknown
	Index      int // position within the source document
}

// IndexEntry pairs a chunk with its embedding vector.
type IndexEntry struct {
	Chunk  Chunk
	Vector []float32
}

// SearchHit is a chunk returned by a vector index with its similarity.
type SearchHit struct {
	Chunk Chunk
	Score float64 // higher is more similar
}

// Turn is one prior (question, answer) exchange supplied by the caller.
type Turn struct {
	Question string
	Answer   string
}

// QueryRequest is a question with optional conversation history.
type QueryRequest struct {
	Question string
	History  []Turn
}

// Source attributes part of an answer to an indexed chunk.
type Source struct {
	FileName   string
	PageNumber int // 0 when unknown
	Excerpt    string
	Score      float64
}

// Answer is the generated text plus its sources in retrieval rank order.
type Answer struct {
	Text           string
	Sources        []Source
	RetrievalQuery string // question after history folding
}

// BuildReport summarizes a completed index build.
type BuildReport struct {
	DocumentsProcessed int
	PagesProcessed     int
	ChunksIndexed      int
	StoreKind          string
	OutDir             string
	Duration           time.Duration
}

// NewSource maps a retrieved chunk to a Source record.
func NewSource(hit SearchHit) Source {
	name := hit.Chunk.SourceFile
	if name == "" {
		name = UnknownFile
	}
	return Source{
		FileName:   name,
		PageNumber: hit.Chunk.PageNumber,
		Excerpt:    Excerpt(hit.Chunk.Text, ExcerptLength),
		Score:      hit.Score,
	}
}

// Excerpt truncates text to n characters, appending "..." when it was cut.
func Excerpt(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}
