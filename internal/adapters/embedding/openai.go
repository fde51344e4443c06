package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/adapters/provider"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// Options configures a remote embedding adapter.
type Options struct {
	BaseURL           string
	Model             string
	APIKey            string
	Dimensions        int // expected vector size, 0 to learn it from the first response
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	HTTPClient        *http.Client
}

func (o Options) client(name string) *provider.Client {
	c := &provider.Client{
		Name:       name,
		HTTP:       o.HTTPClient,
		Limiter:    provider.NewLimiter(o.RequestsPerSecond, 1),
		Timeout:    o.Timeout,
		MaxRetries: o.MaxRetries,
		Headers:    map[string]string{},
	}
	if o.APIKey != "" {
		c.Headers["Authorization"] = "Bearer " + o.APIKey
	}
	return c
}

// OpenAIEmbedder calls an OpenAI-compatible /embeddings endpoint.
type OpenAIEmbedder struct {
	baseURL string
	model   string
	client  *provider.Client
	dims    atomic.Int64
}

// NewOpenAIEmbedder creates an embedder for the OpenAI API or any server speaking it.
func NewOpenAIEmbedder(opts Options) *OpenAIEmbedder {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "text-embedding-3-small"
	}
	e := &OpenAIEmbedder{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		model:   opts.Model,
		client:  opts.client("openai"),
	}
	e.dims.Store(int64(opts.Dimensions))
	return e
}

type openAIEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openAIEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts with one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	logger.Debug("Embedding %d texts with %s", len(texts), e.model)

	var resp openAIEmbedResponse
	req := openAIEmbedRequest{Model: e.model, Input: texts}
	if err := e.client.PostJSON(ctx, "embeddings", e.baseURL+"/embeddings", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, e.client.Fail("embeddings", fmt.Errorf("got %d embeddings for %d inputs", len(resp.Data), len(texts)))
	}

	sort.SliceStable(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		if err := e.checkDims(len(d.Embedding)); err != nil {
			return nil, err
		}
		out[i] = d.Embedding
	}
	return out, nil
}

func (e *OpenAIEmbedder) checkDims(n int) error {
	return checkDims(&e.dims, n, func(err error) error { return e.client.Fail("embeddings", err) })
}

// Dimensions returns the configured or observed vector size.
func (e *OpenAIEmbedder) Dimensions() int { return int(e.dims.Load()) }

// ModelName returns the embedding model.
func (e *OpenAIEmbedder) ModelName() string { return e.model }

// checkDims records the first observed size and rejects any other.
func checkDims(dims *atomic.Int64, n int, fail func(error) error) error {
	if n == 0 {
		return fail(errors.New("empty embedding"))
	}
	if dims.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := dims.Load(); int64(n) != want {
		return fail(fmt.Errorf("embedding has %d dimensions, want %d", n, want))
	}
	return nil
}
