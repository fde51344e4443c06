package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/adapters/provider"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// Options configures a remote language model adapter.
type Options struct {
	BaseURL           string
	Model             string
	APIKey            string
	Temperature       float64
	Timeout           time.Duration // whole call, including a full stream
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

// withTimeout bounds a streaming call, which the client's per-attempt
// timeout cannot cover once the response body is handed over.
func (o Options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.Timeout > 0 {
		return context.WithTimeout(ctx, o.Timeout)
	}
	return context.WithCancel(ctx)
}

// OpenAILLM calls an OpenAI-compatible /chat/completions endpoint.
type OpenAILLM struct {
	opts   Options
	url    string
	client *provider.Client
}

// NewOpenAILLM creates a chat completion adapter.
func NewOpenAILLM(opts Options) *OpenAILLM {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.openai.com/v1"
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}
	return &OpenAILLM{
		opts:   opts,
		url:    strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		client: opts.client("openai"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
		Delta   chatMessage `json:"delta"`
	} `json:"choices"`
}

func (l *OpenAILLM) request(prompt string, stream bool) chatRequest {
	return chatRequest{
		Model:       l.opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: l.opts.Temperature,
		Stream:      stream,
	}
}

// Generate returns the first choice of a chat completion.
func (l *OpenAILLM) Generate(ctx context.Context, prompt string) (string, error) {
	var resp chatResponse
	if err := l.client.PostJSON(ctx, "chat", l.url, l.request(prompt, false), &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", l.client.Fail("chat", errors.New("no choices returned"))
	}
	return resp.Choices[0].Message.Content, nil
}

// GenerateStream streams completion deltas from server-sent events.
func (l *OpenAILLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	ctx, cancel := l.opts.withTimeout(ctx)
	resp, err := l.client.DoWithRetry(ctx, "chat", l.url, l.request(prompt, true))
	if err != nil {
		cancel()
		return nil, err
	}
	return pump(ctx, resp.Body, cancel, l.parseEvent), nil
}

var dataPrefix = []byte("data:")

func (l *OpenAILLM) parseEvent(line []byte) (string, bool, bool, error) {
	if !bytes.HasPrefix(line, dataPrefix) {
		return "", false, true, nil // comments, event names, ids
	}
	data := bytes.TrimSpace(line[len(dataPrefix):])
	if string(data) == "[DONE]" {
		return "", true, false, nil
	}
	var chunk chatResponse
	if err := json.Unmarshal(data, &chunk); err != nil {
		return "", false, false, l.client.Fail("chat", fmt.Errorf("decoding stream event: %w", err))
	}
	if len(chunk.Choices) == 0 {
		return "", false, true, nil
	}
	return chunk.Choices[0].Delta.Content, false, false, nil
}

// ModelName returns the chat model.
func (l *OpenAILLM) ModelName() string { return l.opts.Model }
