package retrieval

import (
	"container/heap"
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/kalambet/docchat/internal/storage"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore provides brute-force cosine similarity search over the chunks
// table. It shares the database connection with the storage layer.
//
// When the chunk count exceeds ~100K and query latency becomes noticeable,
// consider migrating to an ANN-backed implementation behind VectorStore.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector search operations.
// The chunks table must already exist (created via storage migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// idScore holds only the chunk ID and score during the scan phase of
// SearchSimilar. Full rows are fetched only for top-K winners.
type idScore struct {
	ID    string
	Score float32
}

// SearchSimilar scans the user's chunk embeddings, keeping the topK highest
// cosine similarities in a min-heap, then fetches the winning rows.
func (s *SQLiteStore) SearchSimilar(ctx context.Context, vector []float32, userID string, topK int) ([]RetrievedChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	queryNorm := norm(vector)
	if queryNorm == 0 {
		return nil, nil
	}

	// Phase 1: scan only chunk_id + embedding to find top-K candidates.
	rows, err := s.db.QueryContext(ctx, `SELECT chunk_id, embedding FROM chunks WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying chunk vectors: %w", err)
	}
	defer rows.Close()

	h := &idScoreHeap{}
	heap.Init(h)

	// Reusable buffer for decoding embeddings to avoid per-row allocations.
	var buf []float32

	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}

		buf, err = storage.DecodeVectorInto(buf, blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", id, err)
		}

		score := cosine(vector, buf, queryNorm)
		if h.Len() < topK {
			heap.Push(h, idScore{ID: id, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = idScore{ID: id, Score: score}
			heap.Fix(h, 0)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	if h.Len() == 0 {
		return nil, nil
	}

	// Phase 2: fetch full rows only for the top-K IDs.
	topIDs := make([]string, h.Len())
	scores := make(map[string]float32, h.Len())
	for i := len(topIDs) - 1; i >= 0; i-- {
		item := heap.Pop(h).(idScore)
		topIDs[i] = item.ID
		scores[item.ID] = item.Score
	}

	queryArgs := make([]interface{}, len(topIDs))
	for i, id := range topIDs {
		queryArgs[i] = id
	}
	fullQuery := `SELECT chunk_id, content, user_id, file_hash, chunk_index, total_chunks, file_name, source
		FROM chunks WHERE chunk_id IN (?` + strings.Repeat(",?", len(topIDs)-1) + `)`

	fullRows, err := s.db.QueryContext(ctx, fullQuery, queryArgs...)
	if err != nil {
		return nil, fmt.Errorf("fetching top-K chunks: %w", err)
	}
	defer fullRows.Close()

	var results []RetrievedChunk
	for fullRows.Next() {
		var id string
		var c RetrievedChunk
		if err := fullRows.Scan(&id, &c.Content, &c.Meta.UserID, &c.Meta.FileHash,
			&c.Meta.ChunkIndex, &c.Meta.TotalChunks, &c.Meta.FileName, &c.Meta.Source); err != nil {
			return nil, fmt.Errorf("scanning full chunk: %w", err)
		}
		c.Score = scores[id]
		results = append(results, c)
	}
	if err := fullRows.Err(); err != nil {
		return nil, fmt.Errorf("iterating full chunks: %w", err)
	}

	// Sort results by score descending (IN query doesn't preserve order).
	sortByScore(results)

	return results, nil
}

// ScanByUser returns up to limit of the user's chunks in stored order with
// zero scores. This is the degraded path when similarity search can't run.
func (s *SQLiteStore) ScanByUser(ctx context.Context, userID string, limit int) ([]RetrievedChunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT content, user_id, file_hash, chunk_index, total_chunks, file_name, source
		FROM chunks WHERE user_id = ? ORDER BY file_hash ASC, chunk_index ASC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning chunks for %s: %w", userID, err)
	}
	defer rows.Close()

	var results []RetrievedChunk
	for rows.Next() {
		var c RetrievedChunk
		if err := rows.Scan(&c.Content, &c.Meta.UserID, &c.Meta.FileHash,
			&c.Meta.ChunkIndex, &c.Meta.TotalChunks, &c.Meta.FileName, &c.Meta.Source); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// sortByScore sorts chunks by score descending. Used for small slices (topK).
func sortByScore(results []RetrievedChunk) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosine computes cosine similarity as dot(a,b) / (aNorm * bNorm).
// aNorm is the precomputed L2 norm of vector a.
func cosine(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// idScoreHeap is a min-heap of idScore ordered by Score.
// Used during the scan phase of SearchSimilar to track top-K candidates.
type idScoreHeap []idScore

func (h idScoreHeap) Len() int            { return len(h) }
func (h idScoreHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h idScoreHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idScoreHeap) Push(x interface{}) { *h = append(*h, x.(idScore)) }
func (h *idScoreHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
