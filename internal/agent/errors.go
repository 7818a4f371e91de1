package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrReplyInProgress: a conversation-changing operation was requested
	// between BeginAssistantReply and Finish/Abort.
	ErrReplyInProgress = errors.New("an assistant reply is in progress")

	// ErrNoReply: FinishAssistantReply without BeginAssistantReply.
	ErrNoReply = errors.New("no assistant reply in progress")

	// ErrNothingToSummarize: the conversation has no messages.
	ErrNothingToSummarize = errors.New("nothing to summarize")

	// ErrInvalidIndex: feedback targets a message that is not an assistant reply.
	ErrInvalidIndex = errors.New("no assistant message at that index")
)

// UpstreamError is a failure of the reply-producing LLM collaborator,
// at initiation or mid-stream. The turn was aborted without commit.
type UpstreamError struct {
	Provider string
	Attempts int
	Err      error
}

func (e *UpstreamError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("%s: reply failed after %d attempts: %v", e.Provider, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: reply failed: %v", e.Provider, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
