package usecases

import (
	"context"
	"errors"
	"strings"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// QueryRewriter folds conversation history into a standalone retrieval query.
type QueryRewriter interface {
	Rewrite(ctx context.Context, question string, history []entities.Turn) (string, error)
}

// HistoryRewriter prefixes the question with the caller's recent questions.
// Follow-ups such as "explain that more simply" then retrieve the same
// passages as the question they refer to.
type HistoryRewriter struct {
	Turns int // most recent turns folded in
}

// Rewrite never fails.
func (r HistoryRewriter) Rewrite(_ context.Context, question string, history []entities.Turn) (string, error) {
	turns := r.Turns
	if turns <= 0 {
		turns = 3
	}
	if len(history) > turns {
		history = history[len(history)-turns:]
	}

	parts := make([]string, 0, len(history)+1)
	for _, t := range history {
		if q := strings.TrimSpace(t.Question); q != "" {
			parts = append(parts, q)
		}
	}
	parts = append(parts, question)
	return strings.Join(parts, " "), nil
}

// LLMRewriter condenses history and question through the language model.
type LLMRewriter struct {
	LLM   ports.LLMService
	Turns int
}

// Rewrite returns the model's standalone question.
func (r LLMRewriter) Rewrite(ctx context.Context, question string, history []entities.Turn) (string, error) {
	if r.Turns > 0 && len(history) > r.Turns {
		history = history[len(history)-r.Turns:]
	}
	out, err := r.LLM.Generate(ctx, buildCondensePrompt(question, history))
	if err != nil {
		return "", err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("empty rewrite")
	}
	return out, nil
}
