package tui

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// PlainIO implements IO using plain terminal output and a line scanner.
type PlainIO struct {
	scanner *bufio.Scanner
	out     io.Writer
	errOut  io.Writer
	tokens  int

	prompt *color.Color
	system *color.Color
	errc   *color.Color

	mu         sync.Mutex
	cancelTurn func()
}

var (
	_ IO            = (*PlainIO)(nil)
	_ TurnCanceller = (*PlainIO)(nil)
)

// NewPlainIO creates a PlainIO on stdin/stdout/stderr.
func NewPlainIO(noColor bool) *PlainIO {
	return NewPlainIOWith(os.Stdin, os.Stdout, os.Stderr, noColor)
}

// NewPlainIOWith creates a PlainIO on the given streams.
func NewPlainIOWith(in io.Reader, out, errOut io.Writer, noColor bool) *PlainIO {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 1024*1024), 1024*1024)
	p := &PlainIO{
		scanner: s,
		out:     out,
		errOut:  errOut,
		prompt:  color.New(color.FgGreen, color.Bold),
		system:  color.New(color.FgCyan),
		errc:    color.New(color.FgRed),
	}
	if noColor {
		p.prompt.DisableColor()
		p.system.DisableColor()
		p.errc.DisableColor()
	}
	return p
}

func (p *PlainIO) ReadInput() (string, error) {
	p.prompt.Fprint(p.out, "\n> ")
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

func (p *PlainIO) UserMessage(_ string) {
	// Plain terminal: the user already sees what they typed.
}

func (p *PlainIO) ThinkingStart() {
	fmt.Fprintln(p.out) // blank line before AI output begins
}

func (p *PlainIO) TextDelta(delta string) {
	fmt.Fprint(p.out, delta)
}

func (p *PlainIO) TextDone(_ string) {
	fmt.Fprintln(p.out)
}

func (p *PlainIO) SystemMessage(text string) {
	p.system.Fprintln(p.out, text)
}

func (p *PlainIO) Error(msg string) {
	p.errc.Fprintf(p.errOut, "error: %s\n", msg)
}

func (p *PlainIO) SetTokens(n int) {
	p.tokens = n
}

// Tokens returns the last reported token count.
func (p *PlainIO) Tokens() int { return p.tokens }

// SetTurnCancel registers the cancel function for the reply in flight.
func (p *PlainIO) SetTurnCancel(cancel func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelTurn = cancel
}

// ClearTurnCancel clears the cancel function when the turn ends.
func (p *PlainIO) ClearTurnCancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelTurn = nil
}

// CancelTurn aborts the reply in flight, e.g. on SIGINT. Returns false
// when no reply is streaming.
func (p *PlainIO) CancelTurn() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelTurn == nil {
		return false
	}
	p.cancelTurn()
	p.cancelTurn = nil
	return true
}
