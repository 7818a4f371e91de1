package tui

import (
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// TuiIO implements the IO interface by sending messages to a bubbletea Program.
// All methods are safe to call from any goroutine.
type TuiIO struct {
	program *tea.Program
	inputCh chan inputResult
	done    chan struct{} // closed once the program has exited

	mu         sync.Mutex
	cancelTurn func()
}

var (
	_ IO            = (*TuiIO)(nil)
	_ TitleSetter   = (*TuiIO)(nil)
	_ TurnCanceller = (*TuiIO)(nil)
)

// send is a nil-safe helper that sends a message to the bubbletea program.
func (t *TuiIO) send(msg tea.Msg) {
	if t.program != nil {
		t.program.Send(msg)
	}
}

func (t *TuiIO) ReadInput() (string, error) {
	if t.program == nil {
		return "", io.EOF
	}
	t.program.Send(readInputMsg{})

	// Block until the user submits or the TUI exits.
	select {
	case res := <-t.inputCh:
		if res.err != nil {
			return "", io.EOF
		}
		return res.text, nil
	case <-t.done:
		return "", io.EOF
	}
}

func (t *TuiIO) UserMessage(text string) { t.send(userMsg{text: text}) }
func (t *TuiIO) ThinkingStart()          { t.send(thinkingStartMsg{}) }
func (t *TuiIO) TextDelta(delta string)  { t.send(textDeltaMsg{delta: delta}) }

func (t *TuiIO) TextDone(fullText string) {
	t.send(textDoneMsg{fullText: fullText})
}

func (t *TuiIO) SystemMessage(text string) { t.send(systemMsg{text: text}) }
func (t *TuiIO) Error(msg string)          { t.send(errorMsg{text: msg}) }
func (t *TuiIO) SetTokens(n int)           { t.send(tokensMsg{n: n}) }

// SetTitle updates the conversation title in the status bar.
func (t *TuiIO) SetTitle(title string) { t.send(titleMsg{title: title}) }

// --- TurnCanceller implementation ---

// SetTurnCancel registers the cancel function for the reply in flight.
func (t *TuiIO) SetTurnCancel(cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = cancel
}

// ClearTurnCancel clears the cancel function when the turn ends.
func (t *TuiIO) ClearTurnCancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelTurn = nil
}

// CancelTurn aborts the reply in flight. Returns true if there was one.
func (t *TuiIO) CancelTurn() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancelTurn != nil {
		t.cancelTurn()
		t.cancelTurn = nil
		return true
	}
	return false
}
