package qa

import (
	"fmt"
	"strings"

	"github.com/jmcarthur/docqa/internal/storage"
)

// detailInstruction maps a detail level to its answering instruction and
// output token budget.
var detailInstruction = map[DetailLevel]struct {
	instruction string
	maxTokens   int
}{
	DetailBrief: {
		instruction: "Answer in one or two concise sentences",
		maxTokens:   256,
	},
	DetailDetailed: {
		instruction: "Be concise and accurate",
		maxTokens:   512,
	},
	DetailComprehensive: {
		instruction: "Answer thoroughly, covering every relevant point in the excerpts",
		maxTokens:   1024,
	},
}

// buildPrompt composes the grounded prompt: the retrieved texts as labeled
// excerpts in retrieval order (highest similarity first; the order is
// meaningful and must not be re-sorted), followed by instructions that bind
// the model to the excerpts.
func buildPrompt(question string, results []storage.RetrievalResult, level DetailLevel) string {
	var excerpts strings.Builder
	for i, result := range results {
		if i > 0 {
			excerpts.WriteString("\n\n")
		}
		fmt.Fprintf(&excerpts, "[Excerpt %d]:\n%s", i+1, result.Text)
	}

	return fmt.Sprintf(`You are a helpful AI assistant analyzing legal documents.

Question: %s

Relevant excerpts from the document:

%s

Instructions:
- Answer the question based ONLY on the provided excerpts
- %s
- If the excerpts don't contain enough information, say so
- If you must infer something the excerpts don't state, label it clearly as an inference
- Cite which excerpt(s) support each claim (e.g., "According to Excerpt 1...")
- Use professional language appropriate for legal documents

Answer:`, question, excerpts.String(), detailInstruction[level].instruction)
}
