// Package provider defines the unified interface and shared types for all LLM providers.
// Each provider adapter (openai.go, anthropic.go) implements the Provider interface,
// normalizing vendor-specific streaming responses into a unified Event sequence.
package provider

import (
	"context"
	"errors"
	"strings"
)

// ── Message types ────────────────────────────────────────────────────────────

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single message in the conversation history.
type Message struct {
	Role    Role
	Content string
}

// ── Request types ────────────────────────────────────────────────────────────

// ChatRequest is the unified request format sent to a provider.
type ChatRequest struct {
	Model        string
	Messages     []Message
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64 // nil = provider default
}

// ── Event types (streaming output) ───────────────────────────────────────────

type EventType int

const (
	// EventTextDelta: incremental text output from the LLM, rendered in real time.
	EventTextDelta EventType = iota

	// EventDone: end of this message turn, includes token usage.
	EventDone

	// EventError: an error occurred. No further events follow.
	EventError
)

// Event is the unified streaming event emitted by a provider.
type Event struct {
	Type EventType

	// EventTextDelta
	TextDelta string

	// EventDone
	Usage *Usage

	// EventError
	Error error
}

// Usage records token consumption for an API call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ── Provider interface ───────────────────────────────────────────────────────

// Provider is the unified interface for all LLM providers.
// Implementors are responsible for:
// 1. Converting the unified ChatRequest into the provider's API request format
// 2. Converting the provider's streaming response into a unified Event sequence
type Provider interface {
	// Chat initiates a streaming conversation.
	// The returned channel emits Events until EventDone or EventError, then closes.
	// The caller must fully consume the channel to avoid goroutine leaks.
	Chat(ctx context.Context, req *ChatRequest) (<-chan Event, error)

	// Complete sends the request without streaming and returns the reply text.
	Complete(ctx context.Context, req *ChatRequest) (string, error)

	// Name returns the provider identifier, e.g. "openrouter", "anthropic", "deepseek".
	Name() string

	// DefaultModel returns the default model.
	DefaultModel() string
}

// ErrEmptyResponse is returned by Complete when the API answers with no choices.
var ErrEmptyResponse = errors.New("empty response from provider")

// Collect drains a Chat stream and returns the concatenated text.
// The first EventError ends collection with that error.
func Collect(events <-chan Event) (string, *Usage, error) {
	var sb strings.Builder
	var usage *Usage
	var err error
	for ev := range events {
		switch ev.Type {
		case EventTextDelta:
			if err == nil {
				sb.WriteString(ev.TextDelta)
			}
		case EventDone:
			usage = ev.Usage
		case EventError:
			if err == nil {
				err = ev.Error
			}
		}
	}
	return sb.String(), usage, err
}
