package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/0xcro3dile/docurag-go/internal/adapters/provider"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// OllamaEmbedder implements ports.EmbeddingService using the Ollama API.
type OllamaEmbedder struct {
	baseURL string
	model   string
	client  *provider.Client
	dims    atomic.Int64
}

// NewOllamaEmbedder creates a new Ollama embedding adapter.
func NewOllamaEmbedder(opts Options) *OllamaEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "nomic-embed-text"
	}
	e := &OllamaEmbedder{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		client:  opts.client("ollama"),
	}
	e.dims.Store(int64(opts.Dimensions))
	return e
}

// ollamaEmbedRequest is the Ollama API request format.
type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// ollamaEmbedResponse is the Ollama API response format.
type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates an embedding for a single text.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var resp ollamaEmbedResponse
	req := ollamaEmbedRequest{Model: e.model, Prompt: text}
	if err := e.client.PostJSON(ctx, "embeddings", e.baseURL+"/api/embeddings", req, &resp); err != nil {
		return nil, err
	}
	fail := func(err error) error { return e.client.Fail("embeddings", err) }
	if err := checkDims(&e.dims, len(resp.Embedding), fail); err != nil {
		return nil, err
	}
	return resp.Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts.
// The endpoint takes one prompt per call, so texts are sent sequentially.
func (e *OllamaEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	logger.Debug("Embedding %d texts with ollama %s", len(texts), e.model)
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the configured or observed vector size.
func (e *OllamaEmbedder) Dimensions() int { return int(e.dims.Load()) }

// ModelName returns the embedding model.
func (e *OllamaEmbedder) ModelName() string { return e.model }
