package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kanit/internal/models"
)

// exportLimit bounds how many messages ExportHistory returns.
const exportLimit = 1000

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		metadata TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at);

	CREATE TABLE IF NOT EXISTS chat_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		extra_data TEXT DEFAULT '{}'
	);

	CREATE INDEX IF NOT EXISTS idx_chat_history_session ON chat_history(user_id, session_id, timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// SaveDocument inserts or replaces a document. A zero CreatedAt is set to now.
func (s *SQLiteStorage) SaveDocument(ctx context.Context, doc *models.KBDocument) error {
	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (id, content, metadata, created_at)
		 VALUES (?, ?, ?, ?)`,
		doc.ID, doc.Content, string(metadataJSON), doc.CreatedAt,
	)
	return err
}

// GetDocument returns a document by ID, or ErrNotFound.
func (s *SQLiteStorage) GetDocument(ctx context.Context, id string) (*models.KBDocument, error) {
	var doc models.KBDocument
	var metadataJSON sql.NullString

	err := s.db.QueryRowContext(ctx,
		`SELECT id, content, metadata, created_at FROM documents WHERE id = ?`, id,
	).Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if err := decodeMetadata(metadataJSON, &doc.Metadata); err != nil {
		return nil, err
	}
	return &doc, nil
}

// DeleteDocument removes a document by ID. Deleting a missing ID is not an error.
func (s *SQLiteStorage) DeleteDocument(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id)
	return err
}

// ListDocuments returns documents oldest first with offset and limit.
// A limit <= 0 returns every document from offset.
func (s *SQLiteStorage) ListDocuments(ctx context.Context, offset, limit int) ([]*models.KBDocument, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, content, metadata, created_at
		 FROM documents ORDER BY created_at, id LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.KBDocument
	for rows.Next() {
		var doc models.KBDocument
		var metadataJSON sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Content, &metadataJSON, &doc.CreatedAt); err != nil {
			return nil, err
		}
		if err := decodeMetadata(metadataJSON, &doc.Metadata); err != nil {
			return nil, err
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// CountDocuments returns the total number of documents.
func (s *SQLiteStorage) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count)
	return count, err
}

// SaveMessage appends a message to a session's history. A zero Timestamp is
// set to now.
func (s *SQLiteStorage) SaveMessage(ctx context.Context, userID, sessionID string, rec models.ChatRecord) error {
	extra := rec.Metadata
	if extra == nil {
		extra = map[string]any{}
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("failed to marshal extra data: %w", err)
	}
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, session_id, role, content, timestamp, extra_data)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, sessionID, string(rec.Role), rec.Content, ts, string(extraJSON),
	)
	return err
}

// History returns the latest limit messages of a session, oldest first.
func (s *SQLiteStorage) History(ctx context.Context, userID, sessionID string, limit int) ([]models.ChatRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role, content, timestamp, extra_data FROM chat_history
		 WHERE user_id = ? AND session_id = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		userID, sessionID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []models.ChatRecord{}
	for rows.Next() {
		var rec models.ChatRecord
		var role string
		var extra sql.NullString
		if err := rows.Scan(&role, &rec.Content, &rec.Timestamp, &extra); err != nil {
			return nil, err
		}
		rec.Role = models.Role(role)
		rec.Metadata = map[string]any{}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal extra data: %w", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// ClearSession deletes every message of a session.
func (s *SQLiteStorage) ClearSession(ctx context.Context, userID, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_history WHERE user_id = ? AND session_id = ?`, userID, sessionID)
	return err
}

// ExportHistory returns up to 1000 messages of a session as indented JSON.
func (s *SQLiteStorage) ExportHistory(ctx context.Context, userID, sessionID string) ([]byte, error) {
	records, err := s.History(ctx, userID, sessionID, exportLimit)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(records, "", "  ")
}

// SizeBytes returns the on-disk size of the database including its WAL and
// shared-memory files. Missing files count as zero.
func (s *SQLiteStorage) SizeBytes() (int64, error) {
	var total int64
	for _, p := range []string{s.path, s.path + "-wal", s.path + "-shm"} {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func decodeMetadata(raw sql.NullString, dst *map[string]string) error {
	if !raw.Valid || raw.String == "" || raw.String == "null" {
		return nil
	}
	if err := json.Unmarshal([]byte(raw.String), dst); err != nil {
		return fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return nil
}
