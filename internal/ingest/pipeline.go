package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/loader"
	"github.com/kalambet/docchat/internal/storage"
)

// defaultEmbedBatchSize bounds how many chunks are embedded per batch call.
const defaultEmbedBatchSize = 100

// DocumentStore abstracts the persistence operations the pipeline needs.
type DocumentStore interface {
	GetDocumentByHash(hash string) (storage.Document, error)
	SaveDocument(doc storage.Document, chunks []storage.Chunk) error
}

// Chunker splits extracted text into bounded overlapping pieces.
type Chunker interface {
	Split(text string) []string
}

// BatchEmbedder generates embedding vectors for multiple texts.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Ingestion outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeExists  = "exists"
	OutcomeFailed  = "failed"
)

// Result describes what happened to one ingested file.
type Result struct {
	Outcome    string
	DocID      string
	FileHash   string
	FileName   string
	ChunkCount int
}

// Pipeline turns a file on disk into searchable chunks: hash the raw
// bytes, skip content already processed, extract text, split it, embed
// every chunk, and store document and chunks in one transaction. A failed
// ingestion leaves a failed document record behind so the attempt is
// visible, and returns the error to the caller.
type Pipeline struct {
	store     DocumentStore
	chunker   Chunker
	embedder  BatchEmbedder
	batchSize int
	logger    *slog.Logger

	// loadText is swappable in tests.
	loadText func(path string) (string, error)
}

// NewPipeline creates a Pipeline. If embedBatchSize is <= 0, it defaults to 100.
func NewPipeline(store DocumentStore, chunker Chunker, embedder BatchEmbedder, embedBatchSize int) *Pipeline {
	if embedBatchSize <= 0 {
		embedBatchSize = defaultEmbedBatchSize
	}
	return &Pipeline{
		store:     store,
		chunker:   chunker,
		embedder:  embedder,
		batchSize: embedBatchSize,
		logger:    slog.Default(),
		loadText: func(path string) (string, error) {
			return loader.ForPath(path).Load(path)
		},
	}
}

// Ingest processes a single file for the given user. Content is
// deduplicated globally by hash: if any user already ingested identical
// bytes successfully, the file is reported as existing and nothing is
// re-embedded. A previous failed attempt does not block a retry.
func (p *Pipeline) Ingest(ctx context.Context, path, userID string) (Result, error) {
	hash, err := hashFile(path)
	if err != nil {
		return Result{Outcome: OutcomeFailed}, fmt.Errorf("hashing %s: %w", path, err)
	}

	fileName := filepath.Base(path)

	existing, err := p.store.GetDocumentByHash(hash)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return Result{Outcome: OutcomeFailed, FileHash: hash}, fmt.Errorf("checking for existing document: %w", err)
	}
	if err == nil && existing.Status == storage.StatusProcessed {
		p.logger.Info("document already ingested", "file_hash", hash, "file_name", fileName)
		return Result{
			Outcome:    OutcomeExists,
			DocID:      existing.ID,
			FileHash:   hash,
			FileName:   existing.FileName,
			ChunkCount: existing.ChunkCount,
		}, nil
	}

	text, err := p.loadText(path)
	if err != nil {
		return p.fail(path, fileName, hash, userID, fmt.Errorf("extracting text: %w", err))
	}

	texts := nonBlankChunks(p.chunker.Split(text))
	if len(texts) == 0 {
		return p.fail(path, fileName, hash, userID, errors.New("no text content"))
	}

	vectors, err := p.embedChunks(ctx, texts)
	if err != nil {
		return p.fail(path, fileName, hash, userID, fmt.Errorf("embedding chunks: %w", err))
	}

	now := time.Now().UTC()
	doc := storage.Document{
		ID:         uuid.New().String(),
		FileHash:   hash,
		UserID:     userID,
		SourcePath: path,
		FileName:   fileName,
		Status:     storage.StatusProcessed,
		ChunkCount: len(texts),
		CreatedAt:  now,
	}

	chunks := make([]storage.Chunk, len(texts))
	for i, content := range texts {
		chunks[i] = storage.Chunk{
			ChunkID:     fmt.Sprintf("%s_%d", hash, i),
			FileHash:    hash,
			UserID:      userID,
			Content:     content,
			Embedding:   vectors[i],
			ChunkIndex:  i,
			TotalChunks: len(texts),
			CharLength:  len(content),
			WordCount:   len(strings.Fields(content)),
			Source:      path,
			FileName:    fileName,
			CreatedAt:   now,
		}
	}

	if err := p.store.SaveDocument(doc, chunks); err != nil {
		return Result{Outcome: OutcomeFailed, FileHash: hash, FileName: fileName},
			fmt.Errorf("storing document: %w", err)
	}

	p.logger.Info("document ingested",
		"file_name", fileName, "file_hash", hash, "chunks", len(texts))
	return Result{
		Outcome:    OutcomeSuccess,
		DocID:      doc.ID,
		FileHash:   hash,
		FileName:   fileName,
		ChunkCount: len(texts),
	}, nil
}

// embedChunks embeds texts in bounded batches so one oversized document
// does not turn into a single huge concurrent fan-out.
func (p *Pipeline) embedChunks(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embedder.EmbedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("batch starting at chunk %d: %w", start, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

// fail records the failed attempt and returns the ingestion error. The
// failed record is informational; a later retry overwrites it.
func (p *Pipeline) fail(path, fileName, hash, userID string, cause error) (Result, error) {
	doc := storage.Document{
		ID:         uuid.New().String(),
		FileHash:   hash,
		UserID:     userID,
		SourcePath: path,
		FileName:   fileName,
		Status:     storage.StatusFailed,
		Error:      cause.Error(),
		CreatedAt:  time.Now().UTC(),
	}
	if err := p.store.SaveDocument(doc, nil); err != nil {
		p.logger.Error("recording failed ingestion", "file_name", fileName, "error", err)
	}
	p.logger.Warn("ingestion failed", "file_name", fileName, "error", cause)
	return Result{Outcome: OutcomeFailed, DocID: doc.ID, FileHash: hash, FileName: fileName}, cause
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nonBlankChunks(chunks []string) []string {
	kept := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			kept = append(kept, c)
		}
	}
	return kept
}
