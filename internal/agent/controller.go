package agent

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/apexion-ai/parley/internal/session"
)

// Rating is transient user feedback on an assistant message.
type Rating int

const (
	RatingNone Rating = iota
	RatingUp
	RatingDown
)

func (r Rating) String() string {
	switch r {
	case RatingUp:
		return "up"
	case RatingDown:
		return "down"
	default:
		return "none"
	}
}

// Controller holds exactly one active conversation in memory and mediates
// between it and the store. It is not safe for concurrent use.
type Controller struct {
	store  session.Store
	logger *slog.Logger

	id            string
	title         string
	explicitTitle bool // set via SetTitle; never re-derived
	messages      []session.Message
	feedback      map[int]Rating

	sentinels []string
	reply     *replyBuffer

	// backoff overrides the retry policy's wait before retry n.
	backoff func(n int) time.Duration
}

// replyBuffer accumulates one streamed assistant reply.
type replyBuffer struct {
	filter *sentinelFilter
	shown  strings.Builder
	raw    int // bytes received, filtered or not
}

// NewController activates the most recently modified conversation in store,
// or a fresh empty one when there is none.
func NewController(store session.Store, logger *slog.Logger) (*Controller, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	c := &Controller{
		store:     store,
		logger:    logger,
		sentinels: DefaultSentinels,
	}

	summaries, err := store.List()
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for _, s := range summaries {
		conv, err := store.Load(s.ID)
		if err != nil {
			c.logger.Warn("skipping conversation at startup", "conversation_id", s.ID, "error", err)
			continue
		}
		c.activate(conv)
		return c, nil
	}
	c.activateFresh()
	return c, nil
}

// SetSentinels replaces the marker set stripped from replies. Markers in
// DefaultSentinels are always included.
func (c *Controller) SetSentinels(extra []string) {
	c.sentinels = append(append([]string(nil), DefaultSentinels...), extra...)
}

// ID returns the active conversation id.
func (c *Controller) ID() string { return c.id }

// Title returns the active conversation title.
func (c *Controller) Title() string { return c.title }

// Messages returns a copy of the working message list.
func (c *Controller) Messages() []session.Message {
	return append([]session.Message(nil), c.messages...)
}

// Conversations lists stored conversations, most recent first.
func (c *Controller) Conversations() ([]session.Summary, error) {
	return c.store.List()
}

// Feedback returns a copy of the transient ratings keyed by message index.
func (c *Controller) Feedback() map[int]Rating {
	out := make(map[int]Rating, len(c.feedback))
	for k, v := range c.feedback {
		out[k] = v
	}
	return out
}

func (c *Controller) activate(conv *session.Conversation) {
	c.id = conv.ID
	c.title = conv.Title
	c.messages = append([]session.Message(nil), conv.Messages...)
	// An empty conversation with a non-placeholder title was titled by hand.
	c.explicitTitle = len(conv.Messages) == 0 && conv.Title != session.PlaceholderTitle
	c.feedback = nil
	c.logger.Debug("activated conversation", "conversation_id", c.id, "messages", len(c.messages))
}

func (c *Controller) activateFresh() {
	c.id = c.store.NewID()
	c.title = session.PlaceholderTitle
	c.explicitTitle = false
	c.messages = nil
	c.feedback = nil
	c.logger.Debug("started conversation", "conversation_id", c.id)
}

// Persist writes the active conversation as it stands.
func (c *Controller) Persist() error {
	title := c.title
	if !c.explicitTitle && len(c.messages) == 0 {
		title = session.PlaceholderTitle
	}
	conv, err := c.store.Save(c.id, c.messages, title)
	if err != nil {
		c.logger.Error("persist failed", "op", "save", "conversation_id", c.id, "error", err)
		return err
	}
	c.title = conv.Title
	return nil
}

func (c *Controller) persistIfNonEmpty() error {
	if len(c.messages) == 0 {
		return nil
	}
	return c.Persist()
}

// StartNew persists the current conversation if it has messages, then
// activates a fresh empty one.
func (c *Controller) StartNew() error {
	if c.reply != nil {
		return ErrReplyInProgress
	}
	if err := c.persistIfNonEmpty(); err != nil {
		return err
	}
	c.activateFresh()
	return nil
}

// SwitchTo persists the current conversation if it has messages, then
// loads id and makes it active. On error the current conversation stays
// active; the pre-switch persist is not undone.
func (c *Controller) SwitchTo(id string) error {
	if c.reply != nil {
		return ErrReplyInProgress
	}
	if id == c.id {
		return nil
	}
	if err := c.persistIfNonEmpty(); err != nil {
		return err
	}
	conv, err := c.store.Load(id)
	if err != nil {
		return err
	}
	c.activate(conv)
	return nil
}

// Delete removes conversation id. When it is the active one, the most
// recently modified remaining conversation becomes active, or a fresh one
// when none remain. Feedback is cleared either way.
func (c *Controller) Delete(id string) error {
	if c.reply != nil {
		return ErrReplyInProgress
	}
	active := id == c.id
	err := c.store.Delete(id)
	// The active conversation may never have been saved.
	if err != nil && !(active && errors.Is(err, session.ErrNotFound)) {
		return err
	}
	c.feedback = nil
	c.logger.Info("deleted conversation", "conversation_id", id, "active", active)
	if !active {
		return nil
	}

	summaries, err := c.store.List()
	if err != nil {
		c.activateFresh()
		return fmt.Errorf("list conversations: %w", err)
	}
	for _, s := range summaries {
		if s.ID == id {
			continue
		}
		conv, err := c.store.Load(s.ID)
		if err != nil {
			c.logger.Warn("skipping conversation after delete", "conversation_id", s.ID, "error", err)
			continue
		}
		c.activate(conv)
		return nil
	}
	c.activateFresh()
	return nil
}

// AppendUserMessage appends a user message to the working list. The first
// message of an untitled conversation sets its title.
func (c *Controller) AppendUserMessage(text string) {
	if len(c.messages) == 0 && !c.explicitTitle {
		c.title = session.DeriveTitle(text)
	}
	c.messages = append(c.messages, session.Message{Role: session.RoleUser, Content: text})
}

// ClearCurrent empties the active conversation, resets its title and
// persists it at once.
func (c *Controller) ClearCurrent() error {
	if c.reply != nil {
		return ErrReplyInProgress
	}
	c.messages = nil
	c.title = session.PlaceholderTitle
	c.explicitTitle = false
	c.feedback = nil
	return c.Persist()
}

// SetTitle sets an explicit title and persists it. An empty title reverts
// to the derived one.
func (c *Controller) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	prevTitle, prevExplicit := c.title, c.explicitTitle
	if title == "" {
		c.explicitTitle = false
		c.title = session.ResolveTitle("", c.messages)
	} else {
		c.explicitTitle = true
		c.title = title
	}
	if err := c.Persist(); err != nil {
		c.title, c.explicitTitle = prevTitle, prevExplicit
		return err
	}
	return nil
}

// Rate records feedback on the assistant message at index. RatingNone
// removes it. Feedback is never persisted.
func (c *Controller) Rate(index int, r Rating) error {
	if index < 0 || index >= len(c.messages) || c.messages[index].Role != session.RoleAssistant {
		return fmt.Errorf("%w: %d", ErrInvalidIndex, index)
	}
	if r == RatingNone {
		delete(c.feedback, index)
		return nil
	}
	if c.feedback == nil {
		c.feedback = make(map[int]Rating)
	}
	c.feedback[index] = r
	return nil
}

// BeginAssistantReply opens an empty accumulation buffer, discarding any
// unfinished one.
func (c *Controller) BeginAssistantReply() {
	c.reply = &replyBuffer{filter: newSentinelFilter(c.sentinels)}
}

// Accumulate adds a streamed fragment and returns the text that can be
// displayed now, with sentinel markers removed.
func (c *Controller) Accumulate(fragment string) string {
	if c.reply == nil {
		c.BeginAssistantReply()
	}
	c.reply.raw += len(fragment)
	out := c.reply.filter.Push(fragment)
	c.reply.shown.WriteString(out)
	return out
}

// FinishAssistantReply commits the accumulated reply as one assistant
// message and persists the conversation. If the save fails the message
// stays in the working list and the error is returned.
func (c *Controller) FinishAssistantReply() (session.Message, error) {
	if c.reply == nil {
		return session.Message{}, ErrNoReply
	}
	c.reply.shown.WriteString(c.reply.filter.Flush())
	// Text released early can still join into a marker once a later
	// fragment drops an inner one, so the whole reply is stripped again.
	msg := session.Message{
		Role:    session.RoleAssistant,
		Content: strings.TrimSpace(c.reply.filter.clean(c.reply.shown.String())),
	}
	c.reply = nil
	c.messages = append(c.messages, msg)
	return msg, c.Persist()
}

// AbortAssistantReply discards the accumulation buffer. Nothing is
// appended or written.
func (c *Controller) AbortAssistantReply() {
	if c.reply != nil {
		c.logger.Debug("reply discarded", "conversation_id", c.id, "bytes", c.reply.raw)
	}
	c.reply = nil
}

// Replying reports whether a reply is being accumulated.
func (c *Controller) Replying() bool { return c.reply != nil }
