package usecases

import (
	"fmt"
	"strings"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

const systemInstruction = `You are a helpful assistant answering questions about a collection of documents.
Answer using only the context below. If the context does not contain the answer,
say explicitly that the documents do not provide enough information.
Cite sources by their file name and page when you use them.`

const condenseInstruction = `Given the conversation below and a follow-up question, rephrase the
follow-up question as a standalone question that can be understood without the conversation.
Return only the standalone question.`

// buildPrompt assembles the grounded prompt: instruction, tagged context,
// conversation history and the original question.
func buildPrompt(question string, hits []entities.SearchHit, history []entities.Turn) string {
	var sb strings.Builder
	sb.WriteString(systemInstruction)
	sb.WriteString("\n\nContext:\n")
	if len(hits) == 0 {
		sb.WriteString("(no context retrieved)\n")
	}
	for i, hit := range hits {
		fmt.Fprintf(&sb, "[%d] [Source: %s]\n%s\n\n", i+1, sourceLabel(hit.Chunk), hit.Chunk.Text)
	}
	if len(history) > 0 {
		sb.WriteString("Conversation so far:\n")
		writeHistory(&sb, history)
		sb.WriteString("\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(question)
	sb.WriteString("\nAnswer:")
	return sb.String()
}

// buildCondensePrompt asks the model to fold history into a standalone question.
func buildCondensePrompt(question string, history []entities.Turn) string {
	var sb strings.Builder
	sb.WriteString(condenseInstruction)
	sb.WriteString("\n\nConversation:\n")
	writeHistory(&sb, history)
	sb.WriteString("\nFollow-up question: ")
	sb.WriteString(question)
	sb.WriteString("\nStandalone question:")
	return sb.String()
}

func writeHistory(sb *strings.Builder, history []entities.Turn) {
	for _, turn := range history {
		fmt.Fprintf(sb, "Human: %s\nAssistant: %s\n", turn.Question, turn.Answer)
	}
}

func sourceLabel(c entities.Chunk) string {
	name := c.SourceFile
	if name == "" {
		name = entities.UnknownFile
	}
	if c.PageNumber > 0 {
		return fmt.Sprintf("%s, page %d", name, c.PageNumber)
	}
	return name
}
