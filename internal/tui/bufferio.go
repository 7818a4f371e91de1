package tui

import (
	"io"
	"strings"
	"sync"
)

// BufferIO is a silent IO implementation that replays scripted input lines
// and captures everything the chat loop displays.
type BufferIO struct {
	mu      sync.Mutex
	inputs  []string
	buf     strings.Builder
	replies []string
	system  []string
	errors  []string
	tokens  int
	title   string
}

var (
	_ IO          = (*BufferIO)(nil)
	_ TitleSetter = (*BufferIO)(nil)
)

// NewBufferIO creates a BufferIO that returns inputs in order, then io.EOF.
func NewBufferIO(inputs ...string) *BufferIO {
	return &BufferIO{inputs: inputs}
}

func (b *BufferIO) ReadInput() (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.inputs) == 0 {
		return "", io.EOF
	}
	line := b.inputs[0]
	b.inputs = b.inputs[1:]
	return strings.TrimSpace(line), nil
}

func (b *BufferIO) UserMessage(_ string) {}
func (b *BufferIO) ThinkingStart()       {}

func (b *BufferIO) TextDelta(delta string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.WriteString(delta)
}

func (b *BufferIO) TextDone(fullText string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.replies = append(b.replies, fullText)
}

func (b *BufferIO) SystemMessage(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.system = append(b.system, text)
}

func (b *BufferIO) Error(msg string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errors = append(b.errors, msg)
}

func (b *BufferIO) SetTokens(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokens = n
}

// Output returns all streamed text deltas.
func (b *BufferIO) Output() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Replies returns the committed replies passed to TextDone.
func (b *BufferIO) Replies() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.replies...)
}

// SystemMessages returns every notice shown so far.
func (b *BufferIO) SystemMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.system...)
}

// Errors returns every error shown so far.
func (b *BufferIO) Errors() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.errors...)
}

func (b *BufferIO) SetTitle(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.title = title
}

// Title returns the last title the chat loop displayed.
func (b *BufferIO) Title() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.title
}

// Tokens returns the last token count the chat loop displayed.
func (b *BufferIO) Tokens() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
