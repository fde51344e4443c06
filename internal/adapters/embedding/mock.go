// Package embedding provides embedding adapters.
// Clean Architecture: Adapters implementing ports.EmbeddingService.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"unicode"
)

// MockDimensions matches the OpenAI ada-002 / text-embedding-3-small width.
const MockDimensions = 1536

// MockEmbedder produces deterministic bag-of-words vectors without any
// network access. Each lowercased word is hashed to a bucket and a sign, so
// texts sharing words get similar vectors.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a mock embedder. dims <= 0 means MockDimensions.
func NewMockEmbedder(dims int) *MockEmbedder {
	if dims <= 0 {
		dims = MockDimensions
	}
	return &MockEmbedder{dims: dims}
}

// Embed returns the L2-normalized hashed word counts of text.
func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v := make([]float64, m.dims)
	for _, word := range words(text) {
		sum := sha256.Sum256([]byte(word))
		bucket := binary.BigEndian.Uint64(sum[:8]) % uint64(m.dims)
		if sum[8]&1 == 1 {
			v[bucket]--
		} else {
			v[bucket]++
		}
	}

	var norm float64
	for _, x := range v {
		norm += x * x
	}
	norm = math.Sqrt(norm)

	out := make([]float32, m.dims)
	if norm == 0 {
		return out, nil
	}
	for i, x := range v {
		out[i] = float32(x / norm)
	}
	return out, nil
}

// EmbedBatch embeds texts in order.
func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the vector size.
func (m *MockEmbedder) Dimensions() int { return m.dims }

// ModelName identifies the mock in index manifests.
func (m *MockEmbedder) ModelName() string { return "mock-hash-bow" }

func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
