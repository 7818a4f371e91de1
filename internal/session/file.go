package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/tidwall/gjson"
)

const (
	recordPattern = "chat_*.json"
	recordSuffix  = ".json"
)

// FileStore implements Store with one JSON file per conversation,
// named chat_<id>.json inside a single directory.
type FileStore struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates dir if needed and returns a store rooted there.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if logger == nil {
		logger = nopLogger()
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("store", BackendFile),
		now:    time.Now,
	}, nil
}

// Dir returns the storage directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) NewID() string { return NewID() }

func (s *FileStore) Close() error { return nil }

func (s *FileStore) path(id string) string {
	return filepath.Join(s.dir, Key(id)+recordSuffix)
}

func (s *FileStore) List() ([]Summary, error) {
	names, err := doublestar.Glob(os.DirFS(s.dir), recordPattern)
	if err != nil {
		return nil, &StorageError{Op: "list", Err: err}
	}

	summaries := make([]Summary, 0, len(names))
	for _, name := range names {
		id := strings.TrimSuffix(strings.TrimPrefix(name, "chat_"), recordSuffix)
		if !validID(id) {
			continue
		}
		p := filepath.Join(s.dir, name)
		info, err := os.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue // deleted between glob and stat
			}
			return nil, &StorageError{Op: "list", Key: Key(id), Err: err}
		}
		data, err := os.ReadFile(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, &StorageError{Op: "list", Key: Key(id), Err: err}
		}
		sum, err := summarize(id, data)
		if err != nil {
			s.logger.Warn("skipping unreadable record", "kind", "corrupt", "key", Key(id), "error", err)
			continue
		}
		sum.ModTime = info.ModTime()
		summaries = append(summaries, sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].ModTime.Equal(summaries[j].ModTime) {
			return summaries[i].ModTime.After(summaries[j].ModTime)
		}
		return summaries[i].ID > summaries[j].ID
	})
	return summaries, nil
}

// summarize reads the listing fields of a record without decoding its
// message bodies.
func summarize(id string, data []byte) (Summary, error) {
	if !gjson.ValidBytes(data) {
		return Summary{}, errors.New("invalid JSON")
	}
	fields := gjson.GetManyBytes(data, "title", "created_at", "updated_at", "messages.#")
	title := fields[0].String()
	if title == "" {
		title = PlaceholderTitle
	}
	createdAt, err := parseTime(fields[1].String())
	if err != nil {
		return Summary{}, err
	}
	updatedAt, err := parseTime(fields[2].String())
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		ID:        id,
		Title:     title,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Messages:  int(fields[3].Int()),
	}, nil
}

func (s *FileStore) Load(id string) (*Conversation, error) {
	if !validID(id) {
		return nil, invalidID(id)
	}
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, notFound(id)
		}
		return nil, &StorageError{Op: "load", Key: Key(id), Err: err}
	}
	conv, err := decodeRecord(data, id)
	if err != nil {
		s.logger.Warn("corrupt record", "kind", "corrupt", "key", Key(id), "error", err)
		return nil, &CorruptError{Key: Key(id), Err: err}
	}
	return conv, nil
}

func (s *FileStore) Save(id string, messages []Message, title string) (*Conversation, error) {
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

	prev, err := s.Load(id)
	switch {
	case err == nil:
		if !prev.CreatedAt.IsZero() {
			conv.CreatedAt = prev.CreatedAt
		}
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCorrupt):
		// First write, or replacing a record nobody can read.
	default:
		return nil, err
	}

	data, err := encodeRecord(conv)
	if err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}
	if err := writeFileAtomic(s.path(id), data, 0644); err != nil {
		return nil, &StorageError{Op: "save", Key: Key(id), Err: err}
	}
	s.logger.Debug("saved conversation", "conversation_id", id, "messages", len(conv.Messages))
	return conv, nil
}

func (s *FileStore) Delete(id string) error {
	if !validID(id) {
		return invalidID(id)
	}
	if err := os.Remove(s.path(id)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return notFound(id)
		}
		return &StorageError{Op: "delete", Key: Key(id), Err: err}
	}
	s.logger.Debug("deleted conversation", "conversation_id", id)
	return nil
}

// writeFileAtomic writes data to a temporary file next to path and renames
// it into place, so readers see either the old record or the new one.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	committed = true
	return nil
}
