package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/session"
)

// TurnOptions configures one request to the provider.
type TurnOptions struct {
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  *float64

	// Retry bounds retries of a failed reply. Nil = DefaultRetryPolicy.
	Retry *RetryPolicy

	// OnRetry receives a notice before each retry wait.
	OnRetry func(msg string)
}

// TurnResult describes a committed turn.
type TurnResult struct {
	Message  session.Message
	Usage    *provider.Usage
	Attempts int
}

// Turn appends text as a user message, streams the assistant reply through
// onDelta and commits it. If the reply fails or ctx is cancelled, the user
// message is taken back and nothing is persisted.
func (c *Controller) Turn(ctx context.Context, p provider.Provider, opts TurnOptions, text string, onDelta func(string)) (TurnResult, error) {
	if c.reply != nil {
		return TurnResult{}, ErrReplyInProgress
	}
	turnID := uuid.NewString()
	log := c.logger.With("turn_id", turnID, "conversation_id", c.id, "provider", p.Name())

	prevTitle := c.title
	prevLen := len(c.messages)
	c.AppendUserMessage(text)
	rollback := func() {
		c.AbortAssistantReply()
		c.messages = c.messages[:prevLen]
		c.title = prevTitle
	}

	req := &provider.ChatRequest{
		Model:        opts.Model,
		Messages:     toProviderMessages(c.messages),
		SystemPrompt: opts.SystemPrompt,
		MaxTokens:    opts.MaxTokens,
		Temperature:  opts.Temperature,
	}

	policy := DefaultRetryPolicy
	if opts.Retry != nil {
		policy = *opts.Retry
	}
	delayFor := policy.Delay
	if c.backoff != nil {
		delayFor = c.backoff
	}

	var (
		usage    *provider.Usage
		attempts int
		lastErr  error
	)
	for attempt := range max(policy.MaxRetries, 0) + 1 {
		attempts = attempt + 1
		c.BeginAssistantReply()

		var received bool
		usage, received, lastErr = c.stream(ctx, p, req, onDelta)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			lastErr = ctx.Err()
			break
		}
		if received || attempt >= policy.MaxRetries || !isRetryableError(lastErr) {
			break
		}

		delay := delayFor(attempt)
		log.Warn("reply failed, retrying", "attempt", attempts, "delay", delay, "error", lastErr)
		if opts.OnRetry != nil {
			opts.OnRetry(policy.Notice(attempt, delay, lastErr))
		}
		if err := sleepWithContext(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	if lastErr != nil {
		rollback()
		log.Error("turn aborted", "attempts", attempts, "error", lastErr)
		return TurnResult{Attempts: attempts}, &UpstreamError{Provider: p.Name(), Attempts: attempts, Err: lastErr}
	}

	msg, err := c.FinishAssistantReply()
	res := TurnResult{Message: msg, Usage: usage, Attempts: attempts}
	if err != nil {
		return res, fmt.Errorf("save reply: %w", err)
	}
	log.Info("turn committed", "attempts", attempts, "reply_len", len(msg.Content))
	return res, nil
}

// stream runs one provider call, feeding fragments into the open reply.
// received reports whether any text arrived before a failure.
func (c *Controller) stream(ctx context.Context, p provider.Provider, req *provider.ChatRequest, onDelta func(string)) (usage *provider.Usage, received bool, err error) {
	events, err := p.Chat(ctx, req)
	if err != nil {
		return nil, false, err
	}
	// Let the producer finish if we stop reading early.
	defer func() {
		if err != nil {
			go drain(events)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil, received, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return usage, received, nil
			}
			switch ev.Type {
			case provider.EventTextDelta:
				received = true
				if out := c.Accumulate(ev.TextDelta); out != "" && onDelta != nil {
					onDelta(out)
				}
			case provider.EventDone:
				usage = ev.Usage
			case provider.EventError:
				if ev.Error == nil {
					ev.Error = errors.New("stream failed")
				}
				return nil, received, ev.Error
			}
		}
	}
}

func drain(events <-chan provider.Event) {
	for range events {
	}
}

func toProviderMessages(msgs []session.Message) []provider.Message {
	out := make([]provider.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, provider.Message{Role: provider.Role(m.Role), Content: m.Content})
	}
	return out
}
