package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/openai/openai-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apexion-ai/parley/internal/provider"
	"github.com/apexion-ai/parley/internal/session"
)

func TestTurnCommitsReply(t *testing.T) {
	store := newMemStore()
	c := newTestController(t, store)
	p := &scriptedProvider{attempts: []attempt{{
		fragments: []string{"<s>", "Hel", "lo!", "<|im_end|>"},
		usage:     &provider.Usage{InputTokens: 12, OutputTokens: 3},
	}}}

	var deltas []string
	res, err := c.Turn(context.Background(), p, TurnOptions{Model: "m1", SystemPrompt: "be brief"}, "hi", func(s string) {
		deltas = append(deltas, s)
	})
	require.NoError(t, err)

	assert.Equal(t, assistant("Hello!"), res.Message)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, &provider.Usage{InputTokens: 12, OutputTokens: 3}, res.Usage)
	assert.Equal(t, "Hello!", strings.Join(deltas, ""))

	req := p.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, "m1", req.Model)
	assert.Equal(t, "be brief", req.SystemPrompt)
	assert.Equal(t, []provider.Message{{Role: provider.RoleUser, Content: "hi"}}, req.Messages)

	saved, err := store.Load(c.ID())
	require.NoError(t, err)
	assert.Equal(t, "hi", saved.Title)
	assert.Equal(t, []session.Message{user("hi"), assistant("Hello!")}, saved.Messages)
}

func TestTurnSendsHistory(t *testing.T) {
	store := newMemStore()
	store.seed(t, "a", "", user("q1"), assistant("a1"))
	c := newTestController(t, store)
	p := &scriptedProvider{attempts: []attempt{{fragments: []string{"a2"}}}}

	_, err := c.Turn(context.Background(), p, TurnOptions{}, "q2", nil)
	require.NoError(t, err)

	assert.Equal(t, []provider.Message{
		{Role: provider.RoleUser, Content: "q1"},
		{Role: provider.RoleAssistant, Content: "a1"},
		{Role: provider.RoleUser, Content: "q2"},
	}, p.lastRequest().Messages)
	assert.Len(t, c.Messages(), 4)
}

func TestTurnFailureMidStreamPersistsNothing(t *testing.T) {
	store := newMemStore()
	store.seed(t, "a", "", user("earlier"), assistant("reply"))
	c := newTestController(t, store)
	before, err := store.Load("a")
	require.NoError(t, err)

	fragments := make([]string, 10)
	for i := range fragments {
		fragments[i] = fmt.Sprintf("part%d ", i)
	}
	p := &scriptedProvider{attempts: []attempt{{
		fragments: fragments[:3],
		streamErr: errors.New("connection reset by peer"),
	}}}

	var shown strings.Builder
	_, err = c.Turn(context.Background(), p, TurnOptions{}, "next question", func(s string) { shown.WriteString(s) })

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, "fake", upErr.Provider)
	assert.Equal(t, 1, upErr.Attempts, "content was received, so no retry")
	assert.Equal(t, "part0 part1 part2 ", shown.String())

	assert.Equal(t, []session.Message{user("earlier"), assistant("reply")}, c.Messages())
	assert.Equal(t, "earlier", c.Title())
	assert.False(t, c.Replying())

	after, err := store.Load("a")
	require.NoError(t, err)
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt, "nothing was written")
}

func TestTurnFailureOnFreshConversationRestoresTitle(t *testing.T) {
	store := newMemStore()
	c := newTestController(t, store)
	p := &scriptedProvider{attempts: []attempt{{chatErr: &openai.Error{StatusCode: 401}}}}

	_, err := c.Turn(context.Background(), p, TurnOptions{}, "hello", nil)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 401, provider.StatusCode(err))

	assert.Equal(t, session.PlaceholderTitle, c.Title())
	assert.Empty(t, c.Messages())
	assert.Zero(t, store.saves)
}

func TestTurnRetriesTransientFailures(t *testing.T) {
	store := newMemStore()
	c := newTestController(t, store)
	p := &scriptedProvider{attempts: []attempt{
		{chatErr: errors.New("429 too many requests")},
		{streamErr: errors.New("503 service unavailable")},
		{fragments: []string{"finally"}},
	}}

	var notices []string
	res, err := c.Turn(context.Background(), p, TurnOptions{OnRetry: func(msg string) {
		notices = append(notices, msg)
	}}, "hi", nil)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "finally", res.Message.Content)
	require.Len(t, notices, 2)
	assert.True(t, strings.HasPrefix(notices[0], "Retrying (1/3)"), notices[0])
	assert.True(t, strings.HasPrefix(notices[1], "Retrying (2/3)"), notices[1])
}

func TestTurnGivesUpAfterMaxRetries(t *testing.T) {
	c := newTestController(t, newMemStore())
	var attempts []attempt
	for range DefaultRetryPolicy.MaxRetries + 2 {
		attempts = append(attempts, attempt{chatErr: errors.New("502 bad gateway")})
	}
	p := &scriptedProvider{attempts: attempts}

	_, err := c.Turn(context.Background(), p, TurnOptions{}, "hi", nil)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, 4, upErr.Attempts)
	assert.Contains(t, err.Error(), "after 4 attempts")
	assert.Equal(t, 4, p.calls)
}

func TestTurnHonorsRetryBudget(t *testing.T) {
	tests := []struct {
		name       string
		maxRetries int
		wantCalls  int
	}{
		{"no retries", 0, 1},
		{"one retry", 1, 2},
		{"negative means none", -2, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, newMemStore())
			p := &scriptedProvider{attempts: []attempt{
				{chatErr: errors.New("503 service unavailable")},
				{chatErr: errors.New("503 service unavailable")},
				{chatErr: errors.New("503 service unavailable")},
			}}
			var notices []string
			policy := RetryPolicy{MaxRetries: tt.maxRetries}
			_, err := c.Turn(context.Background(), p, TurnOptions{
				Retry:   &policy,
				OnRetry: func(msg string) { notices = append(notices, msg) },
			}, "hi", nil)

			var upErr *UpstreamError
			require.ErrorAs(t, err, &upErr)
			assert.Equal(t, tt.wantCalls, p.calls)
			assert.Equal(t, tt.wantCalls, upErr.Attempts)
			assert.Len(t, notices, tt.wantCalls-1)
			assert.Empty(t, c.Messages())
		})
	}
}

func TestTurnDoesNotRetryPermanentFailures(t *testing.T) {
	c := newTestController(t, newMemStore())
	p := &scriptedProvider{attempts: []attempt{
		{chatErr: errors.New("401 unauthorized")},
		{fragments: []string{"never"}},
	}}

	_, err := c.Turn(context.Background(), p, TurnOptions{}, "hi", nil)
	require.Error(t, err)
	assert.Equal(t, 1, p.calls)
}

func TestTurnCancelledMidStream(t *testing.T) {
	store := newMemStore()
	c := newTestController(t, store)
	p := &scriptedProvider{attempts: []attempt{{
		fragments: []string{"one ", "two "},
		hang:      true,
	}}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_, err := c.Turn(ctx, p, TurnOptions{}, "hi", func(string) { cancel() })

	require.ErrorIs(t, err, context.Canceled)
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Empty(t, c.Messages())
	assert.False(t, c.Replying())
	assert.Zero(t, store.saves)
}

func TestTurnCancelledDuringBackoff(t *testing.T) {
	c := newTestController(t, newMemStore())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.backoff = func(int) time.Duration {
		cancel()
		return time.Hour
	}
	p := &scriptedProvider{attempts: []attempt{
		{chatErr: errors.New("429 rate limit")},
		{fragments: []string{"unreached"}},
	}}

	_, err := c.Turn(ctx, p, TurnOptions{}, "hi", nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls)
	assert.Empty(t, c.Messages())
}

func TestTurnSaveFailureIsNotUpstream(t *testing.T) {
	store := newMemStore()
	c := newTestController(t, store)
	store.saveErr = errors.New("disk full")
	p := &scriptedProvider{attempts: []attempt{{fragments: []string{"ok"}}}}

	res, err := c.Turn(context.Background(), p, TurnOptions{}, "hi", nil)
	require.Error(t, err)
	var upErr *UpstreamError
	assert.False(t, errors.As(err, &upErr))
	var se *session.StorageError
	assert.ErrorAs(t, err, &se)
	assert.Equal(t, "ok", res.Message.Content)
	assert.Len(t, c.Messages(), 2)
}

func TestTurnWhileReplyOpen(t *testing.T) {
	c := newTestController(t, newMemStore())
	c.BeginAssistantReply()

	_, err := c.Turn(context.Background(), &scriptedProvider{}, TurnOptions{}, "hi", nil)
	assert.ErrorIs(t, err, ErrReplyInProgress)
}

func TestSummarize(t *testing.T) {
	store := newMemStore()
	store.seed(t, "a", "", user("plan a trip"), assistant("sure"))
	c := newTestController(t, store)
	p := &scriptedProvider{completeText: "  <s>- trip planned\n"}

	got, err := c.Summarize(context.Background(), p, SummaryOptions{Model: "cheap"})
	require.NoError(t, err)
	assert.Equal(t, "- trip planned", got)

	req := p.lastRequest()
	assert.Equal(t, "cheap", req.Model)
	require.Len(t, req.Messages, 3)
	assert.Equal(t, provider.Message{Role: provider.RoleSystem, Content: DefaultSummaryPrompt}, req.Messages[0])
	assert.Equal(t, "plan a trip", req.Messages[1].Content)

	saved, err := store.Load("a")
	require.NoError(t, err)
	assert.Len(t, saved.Messages, 2, "summaries are not stored")
}

func TestSummarizeCustomPrompt(t *testing.T) {
	p := &scriptedProvider{completeText: "ok"}
	_, err := Summarize(context.Background(), p, []session.Message{user("x")}, SummaryOptions{Prompt: "One line."})
	require.NoError(t, err)
	assert.Equal(t, "One line.", p.lastRequest().Messages[0].Content)
}

func TestSummarizeEmpty(t *testing.T) {
	c := newTestController(t, newMemStore())
	_, err := c.Summarize(context.Background(), &scriptedProvider{}, SummaryOptions{})
	assert.ErrorIs(t, err, ErrNothingToSummarize)
}

func TestSummarizeUpstreamError(t *testing.T) {
	p := &scriptedProvider{completeErr: errors.New("quota exceeded")}
	_, err := Summarize(context.Background(), p, []session.Message{user("x")}, SummaryOptions{})
	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Contains(t, err.Error(), "quota exceeded")
}
