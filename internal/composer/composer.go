package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/docchat/internal/engine"
	"github.com/kalambet/docchat/internal/retrieval"
)

// defaultTopK is how many chunks at most feed one answer.
const defaultTopK = 20

// excerptCount is how many raw excerpts the degraded answer shows.
const excerptCount = 3

// Fixed answers for the empty cases.
const (
	msgNoDocuments = "No documents found in your collection."
	msgNoRelevant  = "No relevant content found in your documents."
	excerptLeadIn  = "Here's what I found in the documents:"
)

// DocumentChecker reports whether a user has any processed documents.
type DocumentChecker interface {
	HasDocuments(userID string) (bool, error)
}

// ContextRetriever finds the chunks relevant to a query.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query, userID string, k int) []retrieval.RetrievedChunk
}

// Chatter generates a completion for a prompt.
type Chatter interface {
	Chat(ctx context.Context, model string, messages []engine.Message) (string, error)
}

// Answer is a composed response with the chunks that grounded it.
type Answer struct {
	Text     string
	Sources  []retrieval.RetrievedChunk
	DocsUsed int
}

// Composer turns a user question into a grounded answer. A user with no
// documents or no relevant chunks gets a fixed message; a generation
// failure degrades to quoting the top excerpts, so the user always
// receives something useful.
type Composer struct {
	docs      DocumentChecker
	retriever ContextRetriever
	chat      Chatter
	model     string
	topK      int
	logger    *slog.Logger
}

// New creates a Composer answering with the given chat model.
// If topK <= 0, it defaults to 20.
func New(docs DocumentChecker, retriever ContextRetriever, chat Chatter, model string, topK int) *Composer {
	if topK <= 0 {
		topK = defaultTopK
	}
	return &Composer{
		docs:      docs,
		retriever: retriever,
		chat:      chat,
		model:     model,
		topK:      topK,
		logger:    slog.Default(),
	}
}

// Compose answers the query from the user's documents.
func (c *Composer) Compose(ctx context.Context, query, userID string) (Answer, error) {
	has, err := c.docs.HasDocuments(userID)
	if err != nil {
		return Answer{}, fmt.Errorf("checking user documents: %w", err)
	}
	if !has {
		return Answer{Text: msgNoDocuments}, nil
	}

	chunks := c.retriever.Retrieve(ctx, query, userID, c.topK)
	if len(chunks) == 0 {
		return Answer{Text: msgNoRelevant}, nil
	}

	prompt := buildPrompt(buildContext(chunks), query)
	text, err := c.chat.Chat(ctx, c.model, []engine.Message{{Role: "user", Content: prompt}})
	if err != nil {
		c.logger.Warn("answer generation failed, returning excerpts",
			"user_id", userID, "error", err)
		return excerptAnswer(chunks), nil
	}

	return Answer{
		Text:     strings.TrimSpace(text),
		Sources:  chunks,
		DocsUsed: len(chunks),
	}, nil
}

// excerptAnswer quotes the highest-scoring chunks verbatim.
func excerptAnswer(chunks []retrieval.RetrievedChunk) Answer {
	top := chunks
	if len(top) > excerptCount {
		top = top[:excerptCount]
	}

	var sb strings.Builder
	sb.WriteString(excerptLeadIn)
	sb.WriteString("\n\n")
	for _, ch := range top {
		sb.WriteString("- ")
		sb.WriteString(ch.Content)
		sb.WriteString("\n\n")
	}

	return Answer{
		Text:     sb.String(),
		Sources:  top,
		DocsUsed: len(chunks),
	}
}
