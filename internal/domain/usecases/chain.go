package usecases

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
	"github.com/0xcro3dile/docurag-go/internal/logger"
)

// DefaultTopK is the number of chunks retrieved per question.
const DefaultTopK = 4

// IndexProvider hands out the currently serving index, or nil. The index
// stays open until release is called.
type IndexProvider interface {
	Acquire() (idx ports.VectorIndex, release func())
}

// ConversationalChain answers questions from retrieved context.
// It holds no per-request state and is safe for concurrent use.
type ConversationalChain struct {
	embedder ports.EmbeddingService
	llm      ports.LLMService
	indexes  IndexProvider
	rewriter QueryRewriter
	topK     int
}

// NewConversationalChain creates a chain with injected dependencies.
// A nil rewriter uses HistoryRewriter.
func NewConversationalChain(
	embedder ports.EmbeddingService,
	llm ports.LLMService,
	indexes IndexProvider,
	rewriter QueryRewriter,
	topK int,
) *ConversationalChain {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if rewriter == nil {
		rewriter = HistoryRewriter{}
	}
	return &ConversationalChain{
		embedder: embedder,
		llm:      llm,
		indexes:  indexes,
		rewriter: rewriter,
		topK:     topK,
	}
}

// TopK returns the configured retrieval depth.
func (c *ConversationalChain) TopK() int { return c.topK }

// Query answers req.Question using the current index and req.History.
func (c *ConversationalChain) Query(ctx context.Context, req entities.QueryRequest) (*entities.Answer, error) {
	question, hits, query, err := c.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	prompt := buildPrompt(question, hits, req.History)
	text, err := c.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrGeneration, err)
	}

	return &entities.Answer{
		Text:           text,
		Sources:        toSources(hits),
		RetrievalQuery: query,
	}, nil
}

// QueryStream retrieves like Query and then streams the generated answer.
// Errors before generation starts are returned directly; later failures
// arrive as a StreamToken with Error set.
func (c *ConversationalChain) QueryStream(ctx context.Context, req entities.QueryRequest) (*StreamAnswer, error) {
	question, hits, query, err := c.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	tokens, err := c.llm.GenerateStream(ctx, buildPrompt(question, hits, req.History))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entities.ErrGeneration, err)
	}
	return &StreamAnswer{
		Tokens:         tokens,
		Sources:        toSources(hits),
		RetrievalQuery: query,
	}, nil
}

// StreamAnswer is a streaming answer plus its sources.
type StreamAnswer struct {
	Tokens         <-chan ports.StreamToken
	Sources        []entities.Source
	RetrievalQuery string
}

// Search retrieves without generating.
func (c *ConversationalChain) Search(ctx context.Context, req entities.QueryRequest) ([]entities.SearchHit, error) {
	_, hits, _, err := c.retrieve(ctx, req)
	return hits, err
}

// retrieve runs the RECEIVED, REWRITTEN and RETRIEVED stages.
func (c *ConversationalChain) retrieve(ctx context.Context, req entities.QueryRequest) (string, []entities.SearchHit, string, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return "", nil, "", fmt.Errorf("%w: question must not be empty", entities.ErrValidation)
	}

	idx, release := c.indexes.Acquire()
	defer release()
	if idx == nil || idx.Len() == 0 {
		return "", nil, "", entities.ErrServiceUnavailable
	}

	query := question
	if len(req.History) > 0 {
		rewritten, err := c.rewriter.Rewrite(ctx, question, req.History)
		if err != nil {
			logger.Warn("Query rewrite failed, using raw question: %v", err)
		} else {
			query = rewritten
		}
	}
	logger.Debug("Retrieval query: %q", query)

	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, "", fmt.Errorf("embedding query: %w", err)
	}

	hits, err := idx.Search(ctx, vector, c.topK)
	if err != nil {
		return "", nil, "", fmt.Errorf("searching index: %w", err)
	}
	return question, hits, query, nil
}

func toSources(hits []entities.SearchHit) []entities.Source {
	sources := make([]entities.Source, len(hits))
	for i, h := range hits {
		sources[i] = entities.NewSource(h)
	}
	return sources
}
