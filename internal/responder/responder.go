package responder

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/docchat/internal/composer"
	"github.com/kalambet/docchat/internal/ingest"
	"github.com/kalambet/docchat/internal/storage"
)

// Ingestor processes one uploaded file.
type Ingestor interface {
	Ingest(ctx context.Context, path, userID string) (ingest.Result, error)
}

// Answerer composes an answer to a question.
type Answerer interface {
	Compose(ctx context.Context, query, userID string) (composer.Answer, error)
}

// Deliverer sends the finished response to the user.
type Deliverer interface {
	Deliver(ctx context.Context, userID, text string) error
}

// Responder handles one claimed batch: file messages are ingested in
// arrival order, text messages are merged into a single question and
// answered against the user's collection. The combined response is
// delivered and returned for attachment to the batch.
type Responder struct {
	ingestor Ingestor
	answerer Answerer
	deliver  Deliverer
	logger   *slog.Logger
}

// New creates a Responder.
func New(ingestor Ingestor, answerer Answerer, deliver Deliverer) *Responder {
	return &Responder{
		ingestor: ingestor,
		answerer: answerer,
		deliver:  deliver,
		logger:   slog.Default(),
	}
}

// HandleBatch processes the batch and returns the response text.
func (r *Responder) HandleBatch(ctx context.Context, userID string, messages []storage.PendingMessage) (string, error) {
	var parts []string
	var questions []string

	for _, m := range messages {
		if m.IsFile {
			parts = append(parts, r.ingestFile(ctx, userID, m.Text))
			continue
		}
		if q := strings.TrimSpace(m.Text); q != "" {
			questions = append(questions, q)
		}
	}

	if len(questions) > 0 {
		query := strings.Join(questions, "\n")
		answer, err := r.answerer.Compose(ctx, query, userID)
		if err != nil {
			return "", fmt.Errorf("composing answer: %w", err)
		}
		parts = append(parts, answer.Text)
	}

	if len(parts) == 0 {
		return "", nil
	}

	response := strings.Join(parts, "\n\n")
	if err := r.deliver.Deliver(ctx, userID, response); err != nil {
		// The response is still attached to the batch, so it is not lost.
		r.logger.Error("delivering response", "user_id", userID, "error", err)
	}
	return response, nil
}

// ingestFile runs one upload through the pipeline and renders the notice
// for the user.
func (r *Responder) ingestFile(ctx context.Context, userID, path string) string {
	res, err := r.ingestor.Ingest(ctx, path, userID)
	if err != nil {
		r.logger.Warn("file ingestion failed", "user_id", userID, "path", path, "error", err)
		return fmt.Sprintf("Failed to process %s. Please try uploading it again.", displayName(res, path))
	}

	switch res.Outcome {
	case ingest.OutcomeExists:
		return fmt.Sprintf("%s is already in your collection.", displayName(res, path))
	default:
		return fmt.Sprintf("Added %s to your collection (%d sections).", displayName(res, path), res.ChunkCount)
	}
}

func displayName(res ingest.Result, path string) string {
	if res.FileName != "" {
		return res.FileName
	}
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 && idx+1 < len(path) {
		return path[idx+1:]
	}
	return path
}
