package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"
)

// searchK is how many candidates each query variation requests. Variations
// overlap heavily, so a small per-variation multiple of the final k is
// enough to fill the merged set.
const searchK = 5

// Searcher abstracts the fallback cascade for the Retriever.
type Searcher interface {
	Search(ctx context.Context, vector []float32, userID string, limit int) []RetrievedChunk
}

// QueryEmbedder abstracts query embedding for the Retriever.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers a query by searching the vector store with a fixed set
// of paraphrase variations, then merging, deduplicating, ranking, and
// bounding the results. It absorbs every error into an empty result so the
// caller can always fall back to a "no relevant content" answer.
type Retriever struct {
	embedder QueryEmbedder
	searcher Searcher
	logger   *slog.Logger
}

// NewRetriever creates a Retriever backed by the given embedder and search cascade.
func NewRetriever(embedder QueryEmbedder, searcher Searcher) *Retriever {
	return &Retriever{embedder: embedder, searcher: searcher, logger: slog.Default()}
}

// Retrieve returns up to k chunks relevant to the query among the user's
// documents, highest similarity first. Chunks seen under an earlier
// variation keep their first score; ties preserve encounter order.
func (r *Retriever) Retrieve(ctx context.Context, query, userID string, k int) []RetrievedChunk {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return nil
	}

	seen := make(map[ChunkKey]struct{})
	var merged []RetrievedChunk

	for _, variation := range QueryVariations(query) {
		vec, err := r.embedder.Embed(ctx, variation)
		if err != nil {
			r.logger.Warn("embedding query variation failed", "user_id", userID, "error", err)
			continue
		}

		for _, ch := range r.searcher.Search(ctx, vec, userID, searchK) {
			key := ch.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, ch)
		}
	}

	// Stable sort: equal scores keep encounter order across variations.
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Score > merged[j].Score
	})

	if len(merged) > k {
		merged = merged[:k]
	}
	return merged
}

// QueryVariations expands a query into a fixed set of deterministic
// paraphrases. Approximate nearest-neighbor search is sensitive to
// phrasing; searching several formulations raises recall. Duplicates after
// normalization are dropped, preserving order.
func QueryVariations(query string) []string {
	q := strings.TrimSpace(query)
	candidates := []string{
		q,
		"find information about " + q,
		"what does the document say about " + q,
		"find content related to " + q,
		stripPunctuation(q),
		"extract information about " + q,
	}

	seen := make(map[string]struct{}, len(candidates))
	variations := candidates[:0]
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		variations = append(variations, c)
	}
	return variations
}

func stripPunctuation(q string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '?', '!', '.', ',':
			return -1
		}
		return r
	}, q))
}
