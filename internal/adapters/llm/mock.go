// Package llm provides language model adapters.
// Clean Architecture: Adapters implementing ports.LLMService.
package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"time"

	"github.com/0xcro3dile/docurag-go/internal/domain/ports"
)

// MockTemplatePrefix starts every templated mock answer.
const MockTemplatePrefix = "Based on the provided documents, here is what I found about"

var mockPoints = []string{
	"The material covers supervised and unsupervised learning approaches.",
	"The documents stress the importance of data quality and preprocessing.",
	"Several algorithms and their applications are described.",
	"The sources call for responsible development practices.",
	"Emerging trends and future directions are discussed.",
}

var mockConclusions = []string{
	"This is an important area for continued research.",
	"These findings matter for future applications.",
	"Further investigation would clarify the details.",
	"The approach shows promise for solving complex problems.",
	"Careful consideration of these factors is essential.",
}

// MockLLM returns deterministic templated answers after an artificial delay.
// It needs no credentials or network and never fails on a live context.
type MockLLM struct {
	delay time.Duration
}

// NewMockLLM creates a mock model that waits delay before answering.
func NewMockLLM(delay time.Duration) *MockLLM {
	return &MockLLM{delay: delay}
}

// Generate answers prompt. Condensation prompts get the follow-up question
// back unchanged; answer prompts get the template filled with the question.
func (m *MockLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if err := m.wait(ctx); err != nil {
		return "", err
	}
	return MockAnswer(prompt), nil
}

// GenerateStream streams the Generate answer one word at a time.
func (m *MockLLM) GenerateStream(ctx context.Context, prompt string) (<-chan ports.StreamToken, error) {
	ch := make(chan ports.StreamToken)
	go func() {
		defer close(ch)
		if err := m.wait(ctx); err != nil {
			send(ctx, ch, ports.StreamToken{Done: true, Error: err})
			return
		}
		words := strings.Fields(MockAnswer(prompt))
		for i, w := range words {
			if i < len(words)-1 {
				w += " "
			}
			if !send(ctx, ch, ports.StreamToken{Content: w}) {
				return
			}
		}
		send(ctx, ch, ports.StreamToken{Done: true})
	}()
	return ch, nil
}

// ModelName identifies the mock.
func (m *MockLLM) ModelName() string { return "mock-llm" }

func (m *MockLLM) wait(ctx context.Context) error {
	if m.delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(m.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MockAnswer is the deterministic response to prompt.
func MockAnswer(prompt string) string {
	question, condense := extractQuestion(prompt)
	if condense {
		return question
	}
	if question == "" {
		return "This is a mock response generated for local development. A configured model would answer from the provided context."
	}

	h := fnv.New32a()
	h.Write([]byte(question))
	sum := h.Sum32()
	point := mockPoints[sum%uint32(len(mockPoints))]
	conclusion := mockConclusions[(sum/uint32(len(mockPoints)))%uint32(len(mockConclusions))]
	return fmt.Sprintf("%s \"%s\": %s %s", MockTemplatePrefix, question, point, conclusion)
}

// extractQuestion finds the last question line of prompt. condense reports a
// prompt asking for a standalone rewrite of a follow-up question.
func extractQuestion(prompt string) (question string, condense bool) {
	condense = strings.HasSuffix(strings.TrimSpace(prompt), "Standalone question:")
	for _, line := range strings.Split(prompt, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Follow-up question:"):
			question = strings.TrimSpace(strings.TrimPrefix(line, "Follow-up question:"))
		case strings.HasPrefix(line, "Question:"):
			question = strings.TrimSpace(strings.TrimPrefix(line, "Question:"))
		}
	}
	return question, condense
}
