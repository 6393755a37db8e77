package retrieval

import (
	"context"
	"log/slog"
)

// Strategy is one way of obtaining candidate chunks for a query vector.
type Strategy struct {
	Name string
	Run  func(ctx context.Context, vector []float32, userID string, limit int) ([]RetrievedChunk, error)
}

// Cascade tries an ordered list of search strategies, advancing to the next
// when one errors or comes back empty. Availability beats ranking quality
// here: a degraded unranked result is preferred over no result, and the
// cascade itself never fails.
type Cascade struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewCascade builds the standard two-tier cascade over a VectorStore:
// cosine similarity search first, then an unranked scan of the user's
// chunks bounded by the same limit.
func NewCascade(store VectorStore) *Cascade {
	return NewCascadeWith(
		Strategy{Name: "similarity", Run: store.SearchSimilar},
		Strategy{
			Name: "scan",
			Run: func(ctx context.Context, _ []float32, userID string, limit int) ([]RetrievedChunk, error) {
				return store.ScanByUser(ctx, userID, limit)
			},
		},
	)
}

// NewCascadeWith builds a Cascade from an explicit strategy list.
func NewCascadeWith(strategies ...Strategy) *Cascade {
	return &Cascade{strategies: strategies, logger: slog.Default()}
}

// Search runs the strategies in order and returns the first non-empty
// result. Failed strategies are logged and skipped; if every strategy
// fails or comes back empty, the result is simply empty.
func (c *Cascade) Search(ctx context.Context, vector []float32, userID string, limit int) []RetrievedChunk {
	for _, s := range c.strategies {
		chunks, err := s.Run(ctx, vector, userID, limit)
		if err != nil {
			c.logger.Warn("search strategy failed", "strategy", s.Name, "user_id", userID, "error", err)
			continue
		}
		if len(chunks) == 0 {
			continue
		}
		return chunks
	}
	return nil
}
