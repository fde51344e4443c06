// Package usecases contains application business rules.
// Clean Architecture: usecases orchestrate entities and depend on port interfaces only.
package usecases

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("docurag/chunk"))

// TokenChunker splits page text into overlapping windows of whitespace tokens.
// It is pure: identical input always yields identical chunks.
type TokenChunker struct {
	Size    int // tokens per chunk
	Overlap int // tokens shared by adjacent chunks of a page
}

// NewTokenChunker validates the window parameters.
func NewTokenChunker(size, overlap int) (*TokenChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", entities.ErrValidation, size)
	}
	if overlap <= 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [1, %d), got %d", entities.ErrValidation, size, overlap)
	}
	return &TokenChunker{Size: size, Overlap: overlap}, nil
}

// Tokenize splits text into the tokens counted against the chunk size.
func Tokenize(text string) []string {
	return strings.Fields(text)
}

// Split chunks every page of doc. Chunk indexes run across the whole document.
func (c *TokenChunker) Split(doc entities.Document) []entities.Chunk {
	var chunks []entities.Chunk
	for _, page := range doc.Pages {
		for _, text := range c.Windows(page.Text) {
			index := len(chunks)
			chunks = append(chunks, entities.Chunk{
				ID:         chunkID(doc.Name, page.Number, index),
				Text:       text,
				SourceFile: doc.Name,
				PageNumber: page.Number,
				Index:      index,
			})
		}
	}
	return chunks
}

// SplitAll chunks documents in order.
func (c *TokenChunker) SplitAll(docs []entities.Document) []entities.Chunk {
	var chunks []entities.Chunk
	for _, doc := range docs {
		chunks = append(chunks, c.Split(doc)...)
	}
	return chunks
}

// Windows returns the text of each token window of text. The last window may be short.
func (c *TokenChunker) Windows(text string) []string {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	var windows []string
	for start := 0; start < len(tokens); start += step {
		end := start + c.Size
		if end > len(tokens) {
			end = len(tokens)
		}
		windows = append(windows, strings.Join(tokens[start:end], " "))
		if end == len(tokens) {
			break
		}
	}
	return windows
}

func chunkID(file string, page, index int) string {
	name := file + "|" + strconv.Itoa(page) + "|" + strconv.Itoa(index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}
