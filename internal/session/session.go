// Package session defines conversations and their durable storage.
// A conversation is a titled, ordered list of role-tagged messages persisted
// as one record, keyed by a time-derived id.
package session

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

const (
	// PlaceholderTitle is used until a conversation has a user message.
	PlaceholderTitle = "New Chat"

	// TitleLimit is the number of characters kept from the first user message.
	TitleLimit = 50

	titleEllipsis = "..."
)

// Message is a single role-tagged message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Conversation is the durable unit of chat history.
type Conversation struct {
	ID        string
	Title     string
	Messages  []Message
	CreatedAt time.Time // immutable once set
	UpdatedAt time.Time // refreshed on every persisted write
}

// NewID returns a fresh conversation id. IDs are ULIDs: they sort by
// creation time and are strictly increasing within a process.
func NewID() string {
	return ulid.Make().String()
}

// Key returns the storage key for a conversation id.
func Key(id string) string {
	return "chat_" + id
}

// DeriveTitle returns the title for a conversation whose first user message
// is text: its first TitleLimit characters, plus an ellipsis when cut.
func DeriveTitle(text string) string {
	if utf8.RuneCountInString(text) <= TitleLimit {
		return text
	}
	runes := []rune(text)
	return string(runes[:TitleLimit]) + titleEllipsis
}

// ResolveTitle returns title if set, otherwise the title derived from the
// first user message, otherwise PlaceholderTitle.
func ResolveTitle(title string, messages []Message) string {
	if title != "" {
		return title
	}
	for _, m := range messages {
		if m.Role == RoleUser {
			return DeriveTitle(m.Content)
		}
	}
	return PlaceholderTitle
}

// persistable returns the messages that belong in a stored record.
// System messages are synthesized per request and never stored.
// The result is never nil so an empty conversation encodes as [].
func persistable(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == RoleSystem {
			continue
		}
		out = append(out, m)
	}
	return out
}

// validID rejects ids that could escape the storage namespace.
func validID(id string) bool {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return false
	}
	return true
}
