package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document processing statuses.
const (
	StatusPending   = "pending"
	StatusProcessed = "processed"
	StatusFailed    = "failed"
)

// PendingMessage is one inbound chat message waiting in the per-user queue.
// BatchID is empty until the message is claimed; it is set exactly once.
type PendingMessage struct {
	ID         int64
	UserID     string
	Text       string
	IsFile     bool
	ReceivedAt time.Time
	Processed  bool
	BatchID    string
	Response   string
}

// Document is one ingested file. FileHash is the global deduplication key:
// identical content under any user maps to the same document.
type Document struct {
	ID         string
	FileHash   string
	UserID     string
	SourcePath string
	FileName   string
	Status     string
	Error      string
	ChunkCount int
	CreatedAt  time.Time
}

// Chunk is a bounded slice of a document's text with its embedding vector.
// ChunkID is deterministic ("<file_hash>_<index>") so re-storage is idempotent.
type Chunk struct {
	ChunkID     string
	FileHash    string
	UserID      string
	Content     string
	Embedding   []float32
	ChunkIndex  int
	TotalChunks int
	CharLength  int
	WordCount   int
	Source      string
	FileName    string
	CreatedAt   time.Time
}
