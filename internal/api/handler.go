package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/docchat/internal/storage"
)

const maxUploadSize = 50 << 20 // 50MB
const maxMessageBodySize = 1 << 20

// Submitter enqueues a message into the per-user batch queue.
type Submitter interface {
	Submit(userID, text string, isFile bool) error
}

// DocumentLister lists a user's ingested documents.
type DocumentLister interface {
	ListDocumentsByUser(userID string) ([]storage.Document, error)
}

// Deps holds the handler dependencies.
type Deps struct {
	Submitter Submitter
	Documents DocumentLister
	Token     string
	UploadDir string
}

// NewHandler builds the HTTP surface: message submission, document upload
// and listing, and a health probe. Everything except /health requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/messages", handlePostMessage(deps))
		r.Post("/documents", handlePostDocument(deps))
		r.Get("/documents", handleListDocuments(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "docchat"})
}

type messageRequest struct {
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

func handlePostMessage(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxMessageBodySize)
		defer r.Body.Close()

		var req messageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.UserID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}
		if strings.TrimSpace(req.Text) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "text is required")
			return
		}

		if err := deps.Submitter.Submit(req.UserID, req.Text, false); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing message: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	}
}

func handlePostDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "parsing upload: %v", err)
			return
		}

		userID := r.FormValue("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "file is required: %v", err)
			return
		}
		defer file.Close()

		path, err := saveUpload(deps.UploadDir, header.Filename, file)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}

		if err := deps.Submitter.Submit(userID, path, true); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing document: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":    "queued",
			"file_name": filepath.Base(header.Filename),
		})
	}
}

// saveUpload writes the upload under a unique directory so identical file
// names never collide. The original name is kept for loader dispatch by
// extension.
func saveUpload(dir, name string, src multipart.File) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == "/" || base == "" {
		return "", fmt.Errorf("invalid file name %q", name)
	}

	target := filepath.Join(dir, uuid.New().String())
	if err := os.MkdirAll(target, 0o755); err != nil {
		return "", fmt.Errorf("creating upload dir: %w", err)
	}

	path := filepath.Join(target, base)
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("writing file: %w", err)
	}
	return path, nil
}

type documentResponse struct {
	ID         string `json:"id"`
	FileName   string `json:"file_name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user_id")
		if userID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "user_id is required")
			return
		}

		docs, err := deps.Documents.ListDocumentsByUser(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		out := make([]documentResponse, len(docs))
		for i, d := range docs {
			out[i] = documentResponse{
				ID:         d.ID,
				FileName:   d.FileName,
				Status:     d.Status,
				Error:      d.Error,
				ChunkCount: d.ChunkCount,
				CreatedAt:  d.CreatedAt.UTC().Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusOK, map[string]any{"documents": out})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
