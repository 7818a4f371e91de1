package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// PipeIO implements IO for non-interactive pipe/CI mode.
// Reply text goes to stdout, diagnostics go to stderr.
type PipeIO struct {
	format    string    // "text" or "jsonl"
	printLast bool      // only output the final reply text
	writer    io.Writer // stdout
	errW      io.Writer // stderr
	lastText  string    // last committed reply (for printLast mode)
	tokens    int
}

var _ IO = (*PipeIO)(nil)

// NewPipeIO creates a PipeIO instance on stdout/stderr.
func NewPipeIO(format string, printLast bool) *PipeIO {
	return NewPipeIOWith(os.Stdout, os.Stderr, format, printLast)
}

// NewPipeIOWith creates a PipeIO writing to the given streams.
func NewPipeIOWith(out, errOut io.Writer, format string, printLast bool) *PipeIO {
	if format == "" {
		format = "text"
	}
	return &PipeIO{
		format:    format,
		printLast: printLast,
		writer:    out,
		errW:      errOut,
	}
}

func (p *PipeIO) ReadInput() (string, error) { return "", io.EOF }
func (p *PipeIO) ThinkingStart()              {}

func (p *PipeIO) UserMessage(text string) {
	if p.format == "jsonl" {
		p.emitJSONL("user", map[string]string{"content": text})
	}
}

func (p *PipeIO) TextDelta(delta string) {
	if p.printLast {
		return // suppress streaming in printLast mode
	}
	if p.format == "jsonl" {
		return // jsonl emits full text on TextDone
	}
	fmt.Fprint(p.writer, delta)
}

func (p *PipeIO) TextDone(fullText string) {
	p.lastText = fullText
	if p.printLast {
		return // will be flushed at Flush()
	}
	if p.format == "jsonl" {
		if fullText != "" {
			p.emitJSONL("text", map[string]string{"content": fullText})
		}
	} else {
		fmt.Fprintln(p.writer) // newline after streaming deltas
	}
}

func (p *PipeIO) SystemMessage(text string) {
	fmt.Fprintln(p.errW, text)
}

func (p *PipeIO) Error(msg string) {
	if p.format == "jsonl" {
		p.emitJSONL("error", map[string]string{"message": msg})
		return
	}
	fmt.Fprintf(p.errW, "error: %s\n", msg)
}

func (p *PipeIO) SetTokens(n int) { p.tokens = n }

// Flush outputs the last reply when in printLast mode, and the token
// total in jsonl mode. Call it after the turn finishes.
func (p *PipeIO) Flush() {
	if p.printLast && p.lastText != "" {
		fmt.Fprintln(p.writer, p.lastText)
	}
	if p.format == "jsonl" && p.tokens > 0 {
		p.emitJSONL("usage", map[string]int{"tokens": p.tokens})
	}
}

// emitJSONL writes a JSON line to stdout.
func (p *PipeIO) emitJSONL(eventType string, data any) {
	line, _ := json.Marshal(map[string]any{
		"type":      eventType,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	fmt.Fprintln(p.writer, string(line))
}
