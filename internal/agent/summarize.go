package agent

import (
	"context"
	"strings"

	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/session"
)

// DefaultSummaryPrompt is the system message sent ahead of the conversation.
const DefaultSummaryPrompt = "Summarize the conversation into concise key points and action items."

// SummaryOptions configures Summarize.
type SummaryOptions struct {
	Model  string
	Prompt string // empty means DefaultSummaryPrompt
}

// Summarize asks p for a summary of messages in one non-streaming call.
// The result is never stored.
func Summarize(ctx context.Context, p provider.Provider, messages []session.Message, opts SummaryOptions) (string, error) {
	var convo []provider.Message
	for _, m := range messages {
		if m.Role == session.RoleSystem {
			continue
		}
		convo = append(convo, provider.Message{Role: provider.Role(m.Role), Content: m.Content})
	}
	if len(convo) == 0 {
		return "", ErrNothingToSummarize
	}

	prompt := opts.Prompt
	if prompt == "" {
		prompt = DefaultSummaryPrompt
	}
	req := &provider.ChatRequest{
		Model:    opts.Model,
		Messages: append([]provider.Message{{Role: provider.RoleSystem, Content: prompt}}, convo...),
	}
	text, err := p.Complete(ctx, req)
	if err != nil {
		return "", &UpstreamError{Provider: p.Name(), Attempts: 1, Err: err}
	}
	return strings.TrimSpace(StripSentinels(text, DefaultSentinels)), nil
}

// Summarize summarizes the active conversation.
func (c *Controller) Summarize(ctx context.Context, p provider.Provider, opts SummaryOptions) (string, error) {
	summary, err := Summarize(ctx, p, c.messages, opts)
	if err != nil {
		c.logger.Warn("summary failed", "op", "summarize", "conversation_id", c.id, "error", err)
		return "", err
	}
	return summary, nil
}
