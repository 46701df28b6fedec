// Package prompt renders retrieved context and a question into a completion prompt.
package prompt

import (
	"fmt"
	"strings"

	"github.com/pedjoni/idiorag/internal/domain"
)

// noContext is rendered in place of an empty context section.
const noContext = "(No relevant context was found in your documents.)"

// directTemplate asks for a short answer grounded in the context.
const directTemplate = `You are a helpful assistant answering questions about the user's own documents.

Context information is below.
---------------------
%s
---------------------

Instructions:
- Answer using ONLY the context above
- Answer in 2-3 concise sentences
- If the context does not contain the answer, say so plainly
- Do not explain your reasoning

Question: %s
Answer:`

// chainOfThoughtTemplate mandates a reasoning section followed by an answer section.
const chainOfThoughtTemplate = `You are a helpful assistant answering questions about the user's own documents.

Context information is below.
---------------------
%[1]s
---------------------

Instructions:
- Use ONLY the context above
- First reason step by step inside %[3]s and %[4]s
- Then give the final answer inside %[5]s and %[6]s
- Keep the final answer to 2-3 concise sentences
- If the context does not contain the answer, say so in the answer section
- Write nothing outside these two sections

Begin your response immediately with %[3]s

Question: %[2]s
`

// Composer builds prompts. The zero value is ready to use.
type Composer struct{}

// Compose returns the prompt for mode. Unknown modes fall back to direct.
func (Composer) Compose(mode, question string, matches []domain.RetrievedMatch) string {
	ctx := FormatContext(matches)
	if mode == domain.ModeChainOfThought {
		return fmt.Sprintf(chainOfThoughtTemplate, ctx, question,
			domain.MarkerReasoningStart, domain.MarkerReasoningEnd,
			domain.MarkerAnswerStart, domain.MarkerAnswerEnd)
	}
	return fmt.Sprintf(directTemplate, ctx, question)
}

// FormatContext numbers each match; an empty slice renders a placeholder.
func FormatContext(matches []domain.RetrievedMatch) string {
	if len(matches) == 0 {
		return noContext
	}
	var b strings.Builder
	for i, m := range matches {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, strings.TrimSpace(m.Text))
	}
	return b.String()
}
