package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kalambet/docchat/internal/storage"
)

type mockStore struct {
	getFn  func(hash string) (storage.Document, error)
	saveFn func(doc storage.Document, chunks []storage.Chunk) error

	saved      []storage.Document
	savedChunk [][]storage.Chunk
}

func (m *mockStore) GetDocumentByHash(hash string) (storage.Document, error) {
	if m.getFn != nil {
		return m.getFn(hash)
	}
	return storage.Document{}, storage.ErrNotFound
}

func (m *mockStore) SaveDocument(doc storage.Document, chunks []storage.Chunk) error {
	m.saved = append(m.saved, doc)
	m.savedChunk = append(m.savedChunk, chunks)
	if m.saveFn != nil {
		return m.saveFn(doc, chunks)
	}
	return nil
}

type mockChunker struct {
	splitFn func(text string) []string
}

func (m *mockChunker) Split(text string) []string {
	if m.splitFn != nil {
		return m.splitFn(text)
	}
	return []string{text}
}

type mockEmbedder struct {
	batchFn func(ctx context.Context, texts []string) ([][]float32, error)
	batches [][]string
}

func (m *mockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	m.batches = append(m.batches, append([]string(nil), texts...))
	if m.batchFn != nil {
		return m.batchFn(ctx, texts)
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing temp file: %v", err)
	}
	return path
}

func TestIngestSuccess(t *testing.T) {
	store := &mockStore{}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, &mockChunker{splitFn: func(text string) []string {
		return []string{"first half", "second half"}
	}}, embedder, 0)

	path := writeTempFile(t, "notes.txt", "first half second half")
	res, err := p.Ingest(context.Background(), path, "u1")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeSuccess)
	}
	if res.ChunkCount != 2 {
		t.Errorf("chunk count = %d, want 2", res.ChunkCount)
	}
	if res.FileName != "notes.txt" {
		t.Errorf("file name = %q, want notes.txt", res.FileName)
	}

	sum := sha256.Sum256([]byte("first half second half"))
	wantHash := hex.EncodeToString(sum[:])
	if res.FileHash != wantHash {
		t.Errorf("file hash = %q, want sha256 of raw bytes", res.FileHash)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d documents, want 1", len(store.saved))
	}
	doc := store.saved[0]
	if doc.Status != storage.StatusProcessed || doc.UserID != "u1" || doc.ChunkCount != 2 {
		t.Errorf("saved document = %+v", doc)
	}

	chunks := store.savedChunk[0]
	if len(chunks) != 2 {
		t.Fatalf("saved %d chunks, want 2", len(chunks))
	}
	for i, ch := range chunks {
		if ch.ChunkID != fmt.Sprintf("%s_%d", wantHash, i) {
			t.Errorf("chunk %d id = %q, want <hash>_%d", i, ch.ChunkID, i)
		}
		if ch.ChunkIndex != i || ch.TotalChunks != 2 {
			t.Errorf("chunk %d index/total = %d/%d", i, ch.ChunkIndex, ch.TotalChunks)
		}
		if len(ch.Embedding) != 3 {
			t.Errorf("chunk %d has no embedding", i)
		}
		if ch.WordCount != 2 {
			t.Errorf("chunk %d word count = %d, want 2", i, ch.WordCount)
		}
	}
}

func TestIngestExistingProcessedDocument(t *testing.T) {
	store := &mockStore{getFn: func(hash string) (storage.Document, error) {
		return storage.Document{
			ID:         "doc-1",
			FileHash:   hash,
			UserID:     "someone-else",
			FileName:   "earlier.txt",
			Status:     storage.StatusProcessed,
			ChunkCount: 7,
		}, nil
	}}
	embedder := &mockEmbedder{}
	p := NewPipeline(store, &mockChunker{}, embedder, 0)

	path := writeTempFile(t, "again.txt", "identical bytes")
	res, err := p.Ingest(context.Background(), path, "u1")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if res.Outcome != OutcomeExists {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeExists)
	}
	if res.DocID != "doc-1" || res.ChunkCount != 7 {
		t.Errorf("result = %+v, want the existing document's identity", res)
	}
	if len(store.saved) != 0 {
		t.Error("existing document was re-saved")
	}
	if len(embedder.batches) != 0 {
		t.Error("existing document was re-embedded")
	}
}

func TestIngestRetriesAfterFailedRecord(t *testing.T) {
	store := &mockStore{getFn: func(hash string) (storage.Document, error) {
		return storage.Document{FileHash: hash, Status: storage.StatusFailed, Error: "boom"}, nil
	}}
	p := NewPipeline(store, &mockChunker{}, &mockEmbedder{}, 0)

	path := writeTempFile(t, "retry.txt", "try me again")
	res, err := p.Ingest(context.Background(), path, "u1")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.Outcome != OutcomeSuccess {
		t.Errorf("outcome = %q, want a failed record to allow retry", res.Outcome)
	}
}

func TestIngestEmbeddingFailurePersistsFailedDocument(t *testing.T) {
	store := &mockStore{}
	embedder := &mockEmbedder{batchFn: func(_ context.Context, _ []string) ([][]float32, error) {
		return nil, errors.New("engine down")
	}}
	p := NewPipeline(store, &mockChunker{}, embedder, 0)

	path := writeTempFile(t, "doomed.txt", "content")
	res, err := p.Ingest(context.Background(), path, "u1")
	if err == nil {
		t.Fatal("expected an error when embedding fails")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}

	if len(store.saved) != 1 {
		t.Fatalf("saved %d documents, want 1 failed record", len(store.saved))
	}
	doc := store.saved[0]
	if doc.Status != storage.StatusFailed {
		t.Errorf("saved status = %q, want %q", doc.Status, storage.StatusFailed)
	}
	if !strings.Contains(doc.Error, "engine down") {
		t.Errorf("saved error = %q, want the cause recorded", doc.Error)
	}
	if len(store.savedChunk[0]) != 0 {
		t.Error("failed record must not carry chunks")
	}
}

func TestIngestMissingFile(t *testing.T) {
	store := &mockStore{}
	p := NewPipeline(store, &mockChunker{}, &mockEmbedder{}, 0)

	res, err := p.Ingest(context.Background(), filepath.Join(t.TempDir(), "absent.pdf"), "u1")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
	if res.Outcome != OutcomeFailed {
		t.Errorf("outcome = %q, want %q", res.Outcome, OutcomeFailed)
	}
	// Hashing failed before any hash existed, so no record is written.
	if len(store.saved) != 0 {
		t.Errorf("saved %d documents, want 0", len(store.saved))
	}
}

func TestIngestWhitespaceOnlyContent(t *testing.T) {
	store := &mockStore{}
	p := NewPipeline(store, &mockChunker{splitFn: func(_ string) []string {
		return []string{"   ", "\n\n\t"}
	}}, &mockEmbedder{}, 0)

	path := writeTempFile(t, "blank.txt", "   \n\n\t")
	_, err := p.Ingest(context.Background(), path, "u1")
	if err == nil {
		t.Fatal("expected an error for whitespace-only content")
	}
	if !strings.Contains(err.Error(), "no text content") {
		t.Errorf("error = %v, want no text content", err)
	}
	if len(store.saved) != 1 || store.saved[0].Status != storage.StatusFailed {
		t.Error("whitespace-only file must leave a failed record")
	}
}

func TestIngestEmbedsInBoundedBatches(t *testing.T) {
	texts := make([]string, 7)
	for i := range texts {
		texts[i] = strings.Repeat("w", 5)
	}
	embedder := &mockEmbedder{}
	p := NewPipeline(&mockStore{}, &mockChunker{splitFn: func(_ string) []string {
		return texts
	}}, embedder, 3)

	path := writeTempFile(t, "long.txt", "whatever")
	if _, err := p.Ingest(context.Background(), path, "u1"); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	wantSizes := []int{3, 3, 1}
	if len(embedder.batches) != len(wantSizes) {
		t.Fatalf("got %d batches, want %d", len(embedder.batches), len(wantSizes))
	}
	for i, want := range wantSizes {
		if len(embedder.batches[i]) != want {
			t.Errorf("batch %d size = %d, want %d", i, len(embedder.batches[i]), want)
		}
	}
}
