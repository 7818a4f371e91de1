package session

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// record is the on-disk JSON form of a Conversation.
type record struct {
	ID        string    `json:"id"`
	LegacyID  string    `json:"chat_id,omitempty"` // written by earlier versions
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

func encodeRecord(c *Conversation) ([]byte, error) {
	rec := record{
		ID:        c.ID,
		Title:     c.Title,
		Messages:  c.Messages,
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
	if rec.Messages == nil {
		rec.Messages = []Message{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rec); err != nil {
		return nil, fmt.Errorf("marshal conversation: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeRecord parses a record stored under id. The storage key is
// authoritative for the id.
func decodeRecord(data []byte, id string) (*Conversation, error) {
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, err
	}
	createdAt, err := parseTime(rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}
	updatedAt, err := parseTime(rec.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("updated_at: %w", err)
	}
	conv := &Conversation{
		ID:        id,
		Title:     rec.Title,
		Messages:  rec.Messages,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	if err := normalize(conv); err != nil {
		return nil, err
	}
	return conv, nil
}

// normalize rejects unknown roles and fills in what older or hand-edited
// records leave out. Both backends decode through it.
func normalize(c *Conversation) error {
	for i, m := range c.Messages {
		switch m.Role {
		case RoleUser, RoleAssistant, RoleSystem:
		default:
			return fmt.Errorf("message %d: unknown role %q", i, m.Role)
		}
	}
	if c.Title == "" {
		c.Title = PlaceholderTitle
	}
	if c.Messages == nil {
		c.Messages = []Message{}
	}
	return nil
}
