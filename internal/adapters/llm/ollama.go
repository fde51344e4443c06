package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/0xcro3dile/docurag-go/internal/adapters/provider"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// OllamaLLM implements ports.LLMService using the Ollama API.
type OllamaLLM struct {
	opts   Options
	url    string
	client *provider.Client
}

// NewOllamaLLM creates a new Ollama LLM adapter.
func NewOllamaLLM(opts Options) *OllamaLLM {
	if opts.BaseURL == "" {
		opts.BaseURL = "http://localhost:11434"
	}
	if opts.Model == "" {
		opts.Model = "llama3.2"
	}
	return &OllamaLLM{
		opts:   opts,
		url:    strings.TrimRight(opts.BaseURL, "/") + "/api/generate",
		client: opts.client("ollama"),
	}
}

// ollamaGenerateRequest is the Ollama generate API request.
type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

// ollamaGenerateResponse is one Ollama generate response or stream line.
type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

func (a *OllamaLLM) request(prompt string, stream bool) ollamaGenerateRequest {
	return ollamaGenerateRequest{
		Model:   a.opts.Model,
		Prompt:  prompt,
		Stream:  stream,
		Options: map[string]any{"temperature": a.opts.Temperature},
	}
}

// Generate produces the full response for prompt.
func (a *OllamaLLM) Generate(ctx context.Context, prompt string) (string, error) {
	var resp ollamaGenerateResponse
	if err := a.client.PostJSON(ctx, "generate", a.url, a.request(prompt, false), &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", a.client.Fail("generate", errors.New(resp.Error))
	}
	return resp.Response, nil
}

// GenerateStream streams the newline-delimited JSON of Ollama's streaming API.
func (a *OllamaLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	ctx, cancel := a.opts.withTimeout(ctx)
	resp, err := a.client.DoWithRetry(ctx, "generate", a.url, a.request(prompt, true))
	if err != nil {
		cancel()
		return nil, err
	}
	return pump(ctx, resp.Body, cancel, a.parseLine), nil
}

func (a *OllamaLLM) parseLine(line []byte) (string, bool, bool, error) {
	var chunk ollamaGenerateResponse
	if err := json.Unmarshal(line, &chunk); err != nil {
		return "", false, false, a.client.Fail("generate", fmt.Errorf("decoding stream line: %w", err))
	}
	if chunk.Error != "" {
		return "", false, false, a.client.Fail("generate", errors.New(chunk.Error))
	}
	return chunk.Response, chunk.Done, false, nil
}

// ModelName returns the model.
func (a *OllamaLLM) ModelName() string { return a.opts.Model }
