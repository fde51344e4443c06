package llm

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const answerPrompt = "Answer using only the context below.\n\nContext:\n[1] [Source: a.pdf, page 1]\nsome text\n\nQuestion: What is machine learning?\nAnswer:"

func TestMockLLM_TemplatedAnswerIsDeterministic(t *testing.T) {
	m := NewMockLLM(0)

	a, err := m.Generate(context.Background(), answerPrompt)
	require.NoError(t, err)
	b, err := NewMockLLM(0).Generate(context.Background(), answerPrompt)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.True(t, strings.HasPrefix(a, MockTemplatePrefix+` "What is machine learning?": `), a)
}

func TestMockLLM_CondensePromptReturnsFollowUp(t *testing.T) {
	prompt := "Rewrite the follow-up.\n\nChat history:\nHuman: hi\nAssistant: hello\n\nFollow-up question: and neural networks?\nStandalone question:"

	out, err := NewMockLLM(0).Generate(context.Background(), prompt)

	require.NoError(t, err)
	assert.Equal(t, "and neural networks?", out)
}

func TestMockLLM_NoQuestionGivesGenericAnswer(t *testing.T) {
	out, err := NewMockLLM(0).Generate(context.Background(), "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "mock response")
}

func TestMockLLM_DelayHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewMockLLM(time.Hour).Generate(ctx, answerPrompt)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMockLLM_StreamMatchesGenerate(t *testing.T) {
	m := NewMockLLM(time.Millisecond)
	want, err := m.Generate(context.Background(), answerPrompt)
	require.NoError(t, err)

	ch, err := m.GenerateStream(context.Background(), answerPrompt)
	require.NoError(t, err)
	got, err := collect(t, ch)

	require.NoError(t, err)
	assert.Equal(t, want, got)
}
