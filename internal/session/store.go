package session

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"
)

// Store abstracts conversation persistence (JSON files, SQLite).
type Store interface {
	// List returns all conversations, most recently modified first.
	List() ([]Summary, error)

	// Load returns the full conversation, or an error matching ErrNotFound
	// or ErrCorrupt.
	Load(id string) (*Conversation, error)

	// Save writes the whole record. An empty title is derived from the
	// first user message. created_at of an existing record is preserved.
	Save(id string, messages []Message, title string) (*Conversation, error)

	// Delete removes the record; ErrNotFound if it does not exist.
	Delete(id string) error

	// NewID returns an identifier for a new conversation.
	NewID() string

	Close() error
}

// Summary is a lightweight view of a stored conversation (for listing).
type Summary struct {
	ID        string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ModTime   time.Time // storage modification time, the List ordering key
	Messages  int
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Open returns the store for backend rooted at dir.
func Open(backend, dir string, logger *slog.Logger) (Store, error) {
	switch backend {
	case "", BackendFile:
		return NewFileStore(dir, logger)
	case BackendSQLite:
		return NewSQLiteStore(filepath.Join(dir, "conversations.db"), logger)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}

// timeLayout is RFC 3339 with fixed-width nanoseconds so that stored
// timestamps in UTC order lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// legacyLayouts are zone-less ISO-8601 forms written by earlier versions.
var legacyLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime accepts RFC 3339 and zone-less local ISO-8601 timestamps.
// An empty string is the zero time.
func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range legacyLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func nopLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
