package session

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS conversations (
    key           TEXT PRIMARY KEY,
    id            TEXT NOT NULL UNIQUE,
    title         TEXT NOT NULL,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL,
    message_count INTEGER NOT NULL DEFAULT 0,
    messages      TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_conversations_updated_at ON conversations(updated_at);
`

// SQLiteStore implements Store backed by a SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures the schema exists.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	if logger == nil {
		logger = nopLogger()
	}
	return &SQLiteStore{db: db, logger: logger.With("store", BackendSQLite), now: time.Now}, nil
}

func (s *SQLiteStore) NewID() string { return NewID() }

func (s *SQLiteStore) Save(id string, messages []Message, title string) (*Conversation, error) {
	if !validID(id) {
		return nil, invalidID(id)
	}
	now := s.now()
	conv := &Conversation{
		ID:        id,
		Title:     ResolveTitle(title, messages),
		Messages:  persistable(messages),
		CreatedAt: now,
		UpdatedAt: now,
	}

	msgJSON, err := json.Marshal(conv.Messages)
	if err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: fmt.Errorf("marshal messages: %w", err)}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}
	defer tx.Rollback()

	var createdAt string
	err = tx.QueryRow(`SELECT created_at FROM conversations WHERE key = ?`, Key(id)).Scan(&createdAt)
	switch {
	case err == nil:
		if t, perr := parseTime(createdAt); perr == nil && !t.IsZero() {
			conv.CreatedAt = t
		}
	case errors.Is(err, sql.ErrNoRows):
	default:
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}

	_, err = tx.Exec(`
		INSERT INTO conversations (key, id, title, created_at, updated_at, message_count, messages)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count,
			messages = excluded.messages`,
		Key(id),
		id,
		conv.Title,
		formatTime(conv.CreatedAt),
		formatTime(conv.UpdatedAt),
		len(conv.Messages),
		string(msgJSON),
	)
	if err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}
	if err := tx.Commit(); err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}
	return conv, nil
}

func (s *SQLiteStore) Load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, invalidID(id)
	}
	row := s.db.QueryRow(`
		SELECT title, created_at, updated_at, messages
		FROM conversations WHERE key = ?`, Key(id))

	var title, createdAt, updatedAt, msgJSON string
	err := row.Scan(&title, &createdAt, &updatedAt, &msgJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, &StorageError{Op: "load", Key: Key(id), Err: err}
	}

	conv, err := s.decodeRow(id, title, createdAt, updatedAt, msgJSON)
	if err != nil {
		s.logger.Warn("corrupt record", "kind", "corrupt", "key", Key(id), "error", err)
		return nil, &CorruptError{Key: Key(id), Err: err}
	}
	return conv, nil
}

func (s *SQLiteStore) decodeRow(id, title, createdAt, updatedAt, msgJSON string) (*Conversation, error) {
	conv := &Conversation{ID: id, Title: title}
	var err error
	if conv.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if conv.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(msgJSON), &conv.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal messages: %w", err)
	}
	if err := normalize(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

func (s *SQLiteStore) List() ([]Summary, error) {
	rows, err := s.db.Query(`
		SELECT id, title, created_at, updated_at, message_count
		FROM conversations ORDER BY updated_at DESC, id DESC`)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	defer rows.Close()

	var infos []Summary
	for rows.Next() {
		var info Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&info.ID, &info.Title, &createdAt, &updatedAt, &info.Messages); err != nil {
			return nil, &StorageError{Op: "list", Err: err}
		}
		var cerr, uerr error
		info.CreatedAt, cerr = parseTime(createdAt)
		info.UpdatedAt, uerr = parseTime(updatedAt)
		if err := errors.Join(cerr, uerr); err != nil {
			s.logger.Warn("skipping unreadable record", "kind", "corrupt", "key", Key(info.ID), "error", err)
			continue
		}
		info.ModTime = info.UpdatedAt
		infos = append(infos, info)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}
	return infos, nil
}

func (s *SQLiteStore) Delete(id string) error {
	if !validID(id) {
		return invalidID(id)
	}
	result, err := s.db.Exec("DELETE FROM conversations WHERE key = ?", Key(id))
	if err != nil {
		return &StorageError{Op: "delete", Key: Key(id), Err: err}
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return notFound(id)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
