package retrieval

import "context"

// VectorStore is the interface for chunk storage backends that support
// similarity search. The default implementation scans SQLite with
// brute-force cosine similarity; an ANN-capable backend can be swapped in
// behind the same interface when the chunk count outgrows linear scans.
type VectorStore interface {
	// SearchSimilar returns the user's topK most similar chunks, scored
	// and ordered by cosine similarity descending.
	SearchSimilar(ctx context.Context, vector []float32, userID string, topK int) ([]RetrievedChunk, error)

	// ScanByUser returns up to limit of the user's chunks without any
	// ranking. Used as the degraded path when similarity search is
	// unavailable or empty.
	ScanByUser(ctx context.Context, userID string, limit int) ([]RetrievedChunk, error)
}

// ChunkMeta describes a retrieved chunk's provenance.
type ChunkMeta struct {
	UserID      string
	FileHash    string
	ChunkIndex  int
	TotalChunks int
	FileName    string
	Source      string
}

// RetrievedChunk is a transient projection of a stored chunk plus its
// similarity score, scoped to one query execution.
type RetrievedChunk struct {
	Content string
	Meta    ChunkMeta
	Score   float32
}

// Key identifies a chunk within one result set for deduplication.
func (c RetrievedChunk) Key() ChunkKey {
	return ChunkKey{FileHash: c.Meta.FileHash, ChunkIndex: c.Meta.ChunkIndex}
}

// ChunkKey is the (file_hash, chunk_index) pair that uniquely identifies a chunk.
type ChunkKey struct {
	FileHash   string
	ChunkIndex int
}
