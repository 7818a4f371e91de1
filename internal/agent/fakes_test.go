package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/session"
)

// memStore is an in-memory session.Store with a logical modification clock.
type memStore struct {
	records map[string]*session.Conversation
	mod     map[string]int
	corrupt map[string]bool
	clock   int
	nextID  int

	saveErr error
	saves   int
}

var _ session.Store = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{
		records: make(map[string]*session.Conversation),
		mod:     make(map[string]int),
		corrupt: make(map[string]bool),
	}
}

func (m *memStore) List() ([]session.Summary, error) {
	out := make([]session.Summary, 0, len(m.mod))
	for id, tick := range m.mod {
		s := session.Summary{ID: id, ModTime: time.Unix(int64(tick), 0)}
		if conv, ok := m.records[id]; ok {
			s.Title = conv.Title
			s.Messages = len(conv.Messages)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModTime.After(out[j].ModTime) })
	return out, nil
}

func (m *memStore) Load(id string) (*session.Conversation, error) {
	if m.corrupt[id] {
		return nil, &session.CorruptError{Key: session.Key(id), Err: errors.New("bad json")}
	}
	conv, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	cp := *conv
	cp.Messages = append([]session.Message(nil), conv.Messages...)
	return &cp, nil
}

func (m *memStore) Save(id string, messages []session.Message, title string) (*session.Conversation, error) {
	if m.saveErr != nil {
		return nil, &session.StorageError{Op: "save", Key: session.Key(id), Err: m.saveErr}
	}
	m.saves++
	m.clock++
	now := time.Unix(int64(m.clock), 0)
	conv := &session.Conversation{
		ID:        id,
		Title:     session.ResolveTitle(title, messages),
		Messages:  append([]session.Message(nil), messages...),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if prev, ok := m.records[id]; ok {
		conv.CreatedAt = prev.CreatedAt
	}
	m.records[id] = conv
	m.mod[id] = m.clock
	delete(m.corrupt, id)
	cp := *conv
	return &cp, nil
}

func (m *memStore) Delete(id string) error {
	if _, ok := m.mod[id]; !ok {
		return fmt.Errorf("%w: %s", session.ErrNotFound, id)
	}
	delete(m.records, id)
	delete(m.mod, id)
	delete(m.corrupt, id)
	return nil
}

func (m *memStore) NewID() string {
	m.nextID++
	return fmt.Sprintf("c%03d", m.nextID)
}

func (m *memStore) Close() error { return nil }

// seed stores a conversation directly, as if saved earlier.
func (m *memStore) seed(t *testing.T, id, title string, msgs ...session.Message) {
	t.Helper()
	_, err := m.Save(id, msgs, title)
	require.NoError(t, err)
}

// markCorrupt lists id but makes it unloadable.
func (m *memStore) markCorrupt(id string) {
	m.clock++
	m.mod[id] = m.clock
	m.corrupt[id] = true
}

func user(text string) session.Message {
	return session.Message{Role: session.RoleUser, Content: text}
}

func assistant(text string) session.Message {
	return session.Message{Role: session.RoleAssistant, Content: text}
}

// attempt scripts one Chat call.
type attempt struct {
	chatErr   error    // returned from Chat itself
	fragments []string // streamed in order
	streamErr error    // sent after fragments instead of EventDone
	hang      bool     // after fragments, wait for ctx to be cancelled
	usage     *provider.Usage
}

// scriptedProvider replays attempts, one per Chat call.
type scriptedProvider struct {
	mu       sync.Mutex
	attempts []attempt
	calls    int
	requests []*provider.ChatRequest

	completeText string
	completeErr  error
}

var _ provider.Provider = (*scriptedProvider)(nil)

func (p *scriptedProvider) Name() string         { return "fake" }
func (p *scriptedProvider) DefaultModel() string { return "fake-model" }

func (p *scriptedProvider) Chat(ctx context.Context, req *provider.ChatRequest) (<-chan provider.Event, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	if p.calls >= len(p.attempts) {
		p.mu.Unlock()
		return nil, errors.New("no scripted attempt left")
	}
	a := p.attempts[p.calls]
	p.calls++
	p.mu.Unlock()

	if a.chatErr != nil {
		return nil, a.chatErr
	}
	ch := make(chan provider.Event)
	go func() {
		defer close(ch)
		// send gives up on cancellation with a final error event; the
		// consumer drains the channel, so that send cannot block forever.
		send := func(ev provider.Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				ch <- provider.Event{Type: provider.EventError, Error: ctx.Err()}
				return false
			}
		}
		for _, f := range a.fragments {
			if !send(provider.Event{Type: provider.EventTextDelta, TextDelta: f}) {
				return
			}
		}
		if a.hang {
			<-ctx.Done()
			ch <- provider.Event{Type: provider.EventError, Error: ctx.Err()}
			return
		}
		if a.streamErr != nil {
			send(provider.Event{Type: provider.EventError, Error: a.streamErr})
			return
		}
		send(provider.Event{Type: provider.EventDone, Usage: a.usage})
	}()
	return ch, nil
}

func (p *scriptedProvider) Complete(_ context.Context, req *provider.ChatRequest) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	return p.completeText, p.completeErr
}

func (p *scriptedProvider) lastRequest() *provider.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.requests) == 0 {
		return nil
	}
	return p.requests[len(p.requests)-1]
}

// newTestController returns a controller over store with retries that do
// not wait.
func newTestController(t *testing.T, store session.Store) *Controller {
	t.Helper()
	c, err := NewController(store, nil)
	require.NoError(t, err)
	c.backoff = func(int) time.Duration { return 0 }
	return c
}
