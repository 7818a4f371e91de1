package session

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	store, err := NewSQLiteStore(dbPath, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// stepClock returns a clock that advances by one second per call.
func stepClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestSQLiteSaveAndLoad(t *testing.T) {
	store := newTestSQLiteStore(t)

	msgs := []Message{
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi"},
	}
	saved, err := store.Save("abc123", msgs, "")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("abc123")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.ID != "abc123" {
		t.Errorf("ID = %q, want %q", loaded.ID, "abc123")
	}
	if loaded.Title != "hello" {
		t.Errorf("Title = %q, want %q", loaded.Title, "hello")
	}
	if len(loaded.Messages) != 2 {
		t.Fatalf("Messages len = %d, want 2", len(loaded.Messages))
	}
	if loaded.Messages[1].Content != "hi" {
		t.Errorf("second message = %q, want %q", loaded.Messages[1].Content, "hi")
	}
	if !loaded.CreatedAt.Equal(saved.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", loaded.CreatedAt, saved.CreatedAt)
	}
	if loaded.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be set after Save")
	}
}

func TestSQLiteLoadNotFound(t *testing.T) {
	store := newTestSQLiteStore(t)

	_, err := store.Load("nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load error = %v, want ErrNotFound", err)
	}
}

// insertRow writes a conversations row directly, bypassing Save.
func insertRow(t *testing.T, store *SQLiteStore, id, title, messages string) {
	t.Helper()
	_, err := store.db.Exec(`
		INSERT INTO conversations (key, id, title, created_at, updated_at, message_count, messages)
		VALUES (?, ?, ?, '2025-01-01T00:00:00.000000000Z', '2025-01-01T00:00:00.000000000Z', 1, ?)`,
		Key(id), id, title, messages)
	if err != nil {
		t.Fatal(err)
	}
}

func TestSQLiteLoadCorrupt(t *testing.T) {
	tests := []struct {
		name     string
		messages string
	}{
		{"invalid json", `{not json`},
		{"unknown role", `[{"role":"robot","content":"beep"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestSQLiteStore(t)
			insertRow(t, store, "bad", "t", tt.messages)

			_, err := store.Load("bad")
			if !errors.Is(err, ErrCorrupt) {
				t.Fatalf("Load error = %v, want ErrCorrupt", err)
			}
			if errors.Is(err, ErrNotFound) {
				t.Error("corrupt record must not match ErrNotFound")
			}
		})
	}
}

func TestSQLiteLoadEmptyTitleUsesPlaceholder(t *testing.T) {
	store := newTestSQLiteStore(t)
	insertRow(t, store, "untitled", "", `[{"role":"system","content":"x"}]`)

	conv, err := store.Load("untitled")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if conv.Title != PlaceholderTitle {
		t.Errorf("Title = %q, want %q", conv.Title, PlaceholderTitle)
	}
}

func TestSQLiteListOrderedByUpdatedAt(t *testing.T) {
	store := newTestSQLiteStore(t)
	store.now = stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Save(id, nil, ""); err != nil {
			t.Fatal(err)
		}
	}
	// Touch "a" again so it becomes the most recent.
	if _, err := store.Save("a", []Message{{Role: RoleUser, Content: "again"}}, ""); err != nil {
		t.Fatal(err)
	}

	infos, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"a", "c", "b"}
	if len(infos) != len(want) {
		t.Fatalf("List len = %d, want %d", len(infos), len(want))
	}
	for i, id := range want {
		if infos[i].ID != id {
			t.Errorf("List[%d] = %q, want %q", i, infos[i].ID, id)
		}
	}
	if infos[0].Messages != 1 {
		t.Errorf("List messages = %d, want 1", infos[0].Messages)
	}
	if infos[0].Title != "again" {
		t.Errorf("List title = %q, want %q", infos[0].Title, "again")
	}
}

func TestSQLiteDelete(t *testing.T) {
	store := newTestSQLiteStore(t)

	if _, err := store.Save("del-me", nil, ""); err != nil {
		t.Fatal(err)
	}
	if err := store.Delete("del-me"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Load("del-me"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after delete = %v, want ErrNotFound", err)
	}
	// Second delete reports not-found, not a storage failure.
	err := store.Delete("del-me")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("second Delete = %v, want ErrNotFound", err)
	}
	var se *StorageError
	if errors.As(err, &se) {
		t.Error("second Delete should not be a StorageError")
	}
}

func TestSQLiteSavePreservesCreatedAt(t *testing.T) {
	store := newTestSQLiteStore(t)
	store.now = stepClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	first, err := store.Save("keep", []Message{{Role: RoleUser, Content: "v1"}}, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Save("keep", []Message{
		{Role: RoleUser, Content: "v1"},
		{Role: RoleAssistant, Content: "v2"},
	}, "Pinned")
	if err != nil {
		t.Fatal(err)
	}

	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", second.CreatedAt, first.CreatedAt)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("UpdatedAt %v should advance past %v", second.UpdatedAt, first.UpdatedAt)
	}

	loaded, err := store.Load("keep")
	if err != nil {
		t.Fatal(err)
	}
	if !loaded.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("loaded CreatedAt = %v, want %v", loaded.CreatedAt, first.CreatedAt)
	}
	if loaded.Title != "Pinned" {
		t.Errorf("Title = %q, want %q", loaded.Title, "Pinned")
	}
	if len(loaded.Messages) != 2 {
		t.Errorf("Messages len = %d, want 2", len(loaded.Messages))
	}
}
