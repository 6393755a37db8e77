package storage

import (
	"database/sql"
	"embed"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a SQLite database with methods for the message queue,
// documents, and chunks.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "docchat.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection for components that share the
// database, such as the vector search layer.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// --- Message queue ---

// AddMessage appends a message to the user's queue and returns its ID.
func (s *Store) AddMessage(m PendingMessage) (int64, error) {
	receivedAt := m.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO messages (user_id, text, is_file, received_at)
		VALUES (?, ?, ?, ?)`,
		m.UserID, m.Text, boolToInt(m.IsFile), receivedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting message: %w", err)
	}
	return res.LastInsertId()
}

// ClaimBatch atomically claims up to limit of the user's oldest unprocessed
// messages, stamping them with batchID and marking them processed. Returns
// the claimed messages oldest-first; an empty slice means the queue is drained.
func (s *Store) ClaimBatch(userID, batchID string, limit int) ([]PendingMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, user_id, text, is_file, received_at
		FROM messages
		WHERE user_id = ? AND processed = 0
		ORDER BY received_at ASC, id ASC
		LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("selecting pending messages: %w", err)
	}

	var batch []PendingMessage
	for rows.Next() {
		var m PendingMessage
		var isFile int
		var receivedAt string
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &isFile, &receivedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.IsFile = isFile != 0
		t, err := time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("parsing received_at for message %d: %w", m.ID, err)
		}
		m.ReceivedAt = t
		m.Processed = true
		m.BatchID = batchID
		batch = append(batch, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating pending messages: %w", err)
	}
	if len(batch) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	queryArgs := make([]interface{}, 0, len(batch)+2)
	queryArgs = append(queryArgs, batchID, now)
	for _, m := range batch {
		queryArgs = append(queryArgs, m.ID)
	}
	query := `UPDATE messages SET processed = 1, batch_id = ?, processing_started = ?
		WHERE id IN (?` + strings.Repeat(",?", len(batch)-1) + `)`
	if _, err := tx.Exec(query, queryArgs...); err != nil {
		return nil, fmt.Errorf("marking batch %s processed: %w", batchID, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}
	return batch, nil
}

// AttachResponse records the downstream response on all messages of a batch.
func (s *Store) AttachResponse(batchID, response string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.Exec(`
		UPDATE messages SET response = ?, processing_completed = ? WHERE batch_id = ?`,
		response, now, batchID,
	)
	if err != nil {
		return fmt.Errorf("attaching response to batch %s: %w", batchID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PendingCount returns the number of unprocessed messages for a user.
func (s *Store) PendingCount(userID string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM messages WHERE user_id = ? AND processed = 0", userID,
	).Scan(&count)
	return count, err
}

// GetBatch returns all messages stamped with the given batch ID, oldest-first.
func (s *Store) GetBatch(batchID string) ([]PendingMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, text, is_file, received_at, processed, batch_id, response
		FROM messages WHERE batch_id = ? ORDER BY received_at ASC, id ASC`, batchID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying batch %s: %w", batchID, err)
	}
	defer rows.Close()

	var results []PendingMessage
	for rows.Next() {
		var m PendingMessage
		var isFile, processed int
		var receivedAt string
		var response sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Text, &isFile, &receivedAt, &processed, &m.BatchID, &response); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		m.IsFile = isFile != 0
		m.Processed = processed != 0
		m.Response = response.String
		t, err := time.Parse(time.RFC3339Nano, receivedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing received_at for message %d: %w", m.ID, err)
		}
		m.ReceivedAt = t
		results = append(results, m)
	}
	return results, rows.Err()
}

// --- Documents ---

// SaveDocument persists a document and all its chunks in one transaction.
// An existing row with the same file_hash is overwritten together with its
// chunks, which makes re-recording after a failed run idempotent.
func (s *Store) SaveDocument(doc Document, chunks []Chunk) error {
	createdAt := doc.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning document transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO documents (id, file_hash, user_id, source_path, file_name, status, error, chunk_count, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_hash) DO UPDATE SET
			user_id = excluded.user_id,
			source_path = excluded.source_path,
			file_name = excluded.file_name,
			status = excluded.status,
			error = excluded.error,
			chunk_count = excluded.chunk_count`,
		doc.ID, doc.FileHash, doc.UserID, doc.SourcePath, doc.FileName,
		doc.Status, doc.Error, doc.ChunkCount, createdAt.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("inserting document %s: %w", doc.FileHash, err)
	}

	if _, err := tx.Exec("DELETE FROM chunks WHERE file_hash = ?", doc.FileHash); err != nil {
		return fmt.Errorf("clearing chunks for %s: %w", doc.FileHash, err)
	}

	if len(chunks) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO chunks (chunk_id, file_hash, user_id, content, embedding, chunk_index,
				total_chunks, char_length, word_count, source, file_name, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("preparing chunk insert: %w", err)
		}
		defer stmt.Close()

		for _, c := range chunks {
			chunkCreated := c.CreatedAt
			if chunkCreated.IsZero() {
				chunkCreated = createdAt
			}
			if _, err := stmt.Exec(
				c.ChunkID, c.FileHash, c.UserID, c.Content, EncodeVector(c.Embedding),
				c.ChunkIndex, c.TotalChunks, c.CharLength, c.WordCount,
				c.Source, c.FileName, chunkCreated.Format(time.RFC3339),
			); err != nil {
				return fmt.Errorf("inserting chunk %s: %w", c.ChunkID, err)
			}
		}
	}

	return tx.Commit()
}

// GetDocumentByHash returns the document whose content hash matches.
func (s *Store) GetDocumentByHash(hash string) (Document, error) {
	var d Document
	var createdAt string
	err := s.db.QueryRow(`
		SELECT id, file_hash, user_id, source_path, file_name, status, error, chunk_count, created_at
		FROM documents WHERE file_hash = ?`, hash,
	).Scan(&d.ID, &d.FileHash, &d.UserID, &d.SourcePath, &d.FileName, &d.Status, &d.Error, &d.ChunkCount, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

// ListDocumentsByUser returns all of a user's documents, newest first.
func (s *Store) ListDocumentsByUser(userID string) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, file_hash, user_id, source_path, file_name, status, error, chunk_count, created_at
		FROM documents WHERE user_id = ? ORDER BY created_at DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying documents for %s: %w", userID, err)
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.FileHash, &d.UserID, &d.SourcePath, &d.FileName, &d.Status, &d.Error, &d.ChunkCount, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		results = append(results, d)
	}
	return results, rows.Err()
}

// HasDocuments reports whether the user owns at least one processed document.
func (s *Store) HasDocuments(userID string) (bool, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM documents WHERE user_id = ? AND status = ?", userID, StatusProcessed,
	).Scan(&count)
	return count > 0, err
}

// CountChunks returns the number of stored chunks for a document.
func (s *Store) CountChunks(fileHash string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM chunks WHERE file_hash = ?", fileHash).Scan(&count)
	return count, err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// EncodeVector serializes a float32 slice to little-endian bytes.
func EncodeVector(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector deserializes little-endian bytes into a new float32 slice.
// Returns an error if the byte slice length is not a multiple of 4 (indicates data corruption).
func DecodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	v := make([]float32, n)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// DecodeVectorInto decodes little-endian bytes into the provided buffer,
// reusing it to avoid per-row allocations during search scans.
func DecodeVectorInto(buf []float32, b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("byte slice length %d is not a multiple of 4", len(b))
	}
	n := len(b) / 4
	if cap(buf) < n {
		buf = make([]float32, n)
	} else {
		buf = buf[:n]
	}
	for i := range buf {
		buf[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return buf, nil
}
