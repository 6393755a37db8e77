package composer

import (
	"fmt"
	"strings"

	"github.com/kalambet/docchat/internal/retrieval"
)

const answerTemplate = `You are a knowledgeable assistant providing clear and concise information.

Context:
%s

Question: %s

Instructions:
1. Answer directly and naturally, as if you inherently know the information
2. Don't say phrases like "According to the document" or "I found in the documents"
3. Don't mention sources unless specifically asked
4. Keep the answer focused and to the point
5. Use a conversational but professional tone
6. If information isn't available, say so briefly and clearly
7. Avoid repeating information

Answer:`

// buildPrompt renders the grounding context and the question into the
// answer prompt.
func buildPrompt(contextStr, question string) string {
	return fmt.Sprintf(answerTemplate, contextStr, question)
}

// buildContext labels every chunk with its file and section so the model
// can ground the answer. Sections are numbered from 1.
func buildContext(chunks []retrieval.RetrievedChunk) string {
	entries := make([]string, len(chunks))
	for i, ch := range chunks {
		entries[i] = fmt.Sprintf("From %s (Section %d):\n%s",
			ch.Meta.FileName, ch.Meta.ChunkIndex+1, ch.Content)
	}
	return strings.Join(entries, "\n\n")
}
